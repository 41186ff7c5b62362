package main

import (
	"fmt"

	"github.com/user/cistern/internal/serialport"
	"github.com/user/cistern/pkg/wire"
)

// send opens port, writes req as a single framed message, reads back
// exactly one response frame, and decodes it. One round trip per
// process invocation, matching the CLI's one-shot usage model.
func send(req *wire.Request) (*wire.Response, error) {
	p, err := serialport.Open(port, baud)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", port, err)
	}
	defer p.Close()

	payload, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if err := wire.WriteFrame(p, wire.MessageAPI, payload); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	frame, err := wire.ReadFrame(p)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var resp wire.Response
	if err := resp.Unmarshal(frame.Payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if resp.IsError() {
		return &resp, fmt.Errorf("%s: %s", resp.ErrorType, resp.ErrorMessage)
	}
	return &resp, nil
}
