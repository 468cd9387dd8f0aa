// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec fixes the daemon's CBOR configuration for the control
// socket. Requests and responses are single self-delimiting CBOR
// values, so no framing layer sits between the socket and the
// decoder:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same status snapshot always serializes to the same bytes.
package codec
