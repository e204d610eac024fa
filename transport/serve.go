// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/ffutop/solar-modbus/modbus"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
)

// ServeFrame decodes one request frame and encodes the handler's reply.
// ok is false when nothing must be sent back: the frame was corrupt or the
// handler declined with ErrNoResponse.
func ServeFrame(ctx context.Context, frame []byte, handler RequestHandler) (resp []byte, ok bool) {
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Warn("RTU frame decode failed", "frame", hex.EncodeToString(frame), "err", err)
		return nil, false
	}

	respPdu, ok := ServeRequest(ctx, adu.SlaveID, adu.Pdu, handler)
	if !ok {
		return nil, false
	}

	respAdu := &rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: respPdu}
	raw, err := respAdu.Encode()
	if err != nil {
		slog.Error("Failed to encode response", "err", err)
		return nil, false
	}
	return raw, true
}

// ServeRequest runs handler on one decoded request. A handler error other
// than ErrNoResponse becomes an exception reply.
func ServeRequest(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit, handler RequestHandler) (modbus.ProtocolDataUnit, bool) {
	respPdu, err := handler(ctx, slaveID, pdu)
	if errors.Is(err, ErrNoResponse) {
		return modbus.ProtocolDataUnit{}, false
	}
	if err != nil {
		slog.Error("Handler failed", "err", err)
		exceptionCode := modbus.ExceptionCodeServerDeviceFailure
		if errors.Is(err, context.DeadlineExceeded) {
			exceptionCode = modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond
		}
		respPdu = modbus.ProtocolDataUnit{
			FunctionCode: pdu.FunctionCode | modbus.ExceptionFlag,
			Data:         []byte{byte(exceptionCode)},
		}
	}
	return respPdu, true
}
