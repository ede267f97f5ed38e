// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import "github.com/calmh/xdr"

// Hand written XDR codec for the packet types. The layout is the obvious
// one: fields in declaration order, strings and byte slices length prefixed
// and padded to four byte alignment, uint16 widened to uint32.

const (
	maxIDLen      = 64
	maxNameLen    = 64
	maxPinHashLen = 64
	maxValueLen   = 64 << 20
)

func (o Announce) XDRSize() int {
	return 4 +
		4 + len(o.ID) + xdr.Padding(len(o.ID)) +
		4 + len(o.Name) + xdr.Padding(len(o.Name)) +
		4 +
		4 + len(o.PinHash) + xdr.Padding(len(o.PinHash))
}

func (o Announce) MarshalXDR() ([]byte, error) {
	buf := make([]byte, o.XDRSize())
	m := &xdr.Marshaller{Data: buf}
	err := o.MarshalXDRInto(m)
	return buf, err
}

func (o Announce) MustMarshalXDR() []byte {
	bs, err := o.MarshalXDR()
	if err != nil {
		panic(err)
	}
	return bs
}

func (o Announce) MarshalXDRInto(m *xdr.Marshaller) error {
	if len(o.ID) > maxIDLen {
		return xdr.ElementSizeExceeded("ID", len(o.ID), maxIDLen)
	}
	if len(o.Name) > maxNameLen {
		return xdr.ElementSizeExceeded("Name", len(o.Name), maxNameLen)
	}
	if len(o.PinHash) > maxPinHashLen {
		return xdr.ElementSizeExceeded("PinHash", len(o.PinHash), maxPinHashLen)
	}
	m.MarshalUint32(o.Magic)
	m.MarshalString(o.ID)
	m.MarshalString(o.Name)
	m.MarshalUint16(o.Port)
	m.MarshalBytes(o.PinHash)
	return m.Error
}

func (o *Announce) UnmarshalXDR(bs []byte) error {
	u := &xdr.Unmarshaller{Data: bs}
	return o.UnmarshalXDRFrom(u)
}

func (o *Announce) UnmarshalXDRFrom(u *xdr.Unmarshaller) error {
	o.Magic = u.UnmarshalUint32()
	o.ID = u.UnmarshalStringMax(maxIDLen)
	o.Name = u.UnmarshalStringMax(maxNameLen)
	o.Port = u.UnmarshalUint16()
	o.PinHash = u.UnmarshalBytesMax(maxPinHashLen)
	return u.Error
}

func (o Bye) XDRSize() int {
	return 4 + 4 + len(o.ID) + xdr.Padding(len(o.ID))
}

func (o Bye) MarshalXDR() ([]byte, error) {
	buf := make([]byte, o.XDRSize())
	m := &xdr.Marshaller{Data: buf}
	err := o.MarshalXDRInto(m)
	return buf, err
}

func (o Bye) MustMarshalXDR() []byte {
	bs, err := o.MarshalXDR()
	if err != nil {
		panic(err)
	}
	return bs
}

func (o Bye) MarshalXDRInto(m *xdr.Marshaller) error {
	if len(o.ID) > maxIDLen {
		return xdr.ElementSizeExceeded("ID", len(o.ID), maxIDLen)
	}
	m.MarshalUint32(o.Magic)
	m.MarshalString(o.ID)
	return m.Error
}

func (o *Bye) UnmarshalXDR(bs []byte) error {
	u := &xdr.Unmarshaller{Data: bs}
	return o.UnmarshalXDRFrom(u)
}

func (o *Bye) UnmarshalXDRFrom(u *xdr.Unmarshaller) error {
	o.Magic = u.UnmarshalUint32()
	o.ID = u.UnmarshalStringMax(maxIDLen)
	return u.Error
}

func (o ClipPayload) XDRSize() int {
	return 4 +
		4 + len(o.ID) + xdr.Padding(len(o.ID)) +
		4 + len(o.PinHash) + xdr.Padding(len(o.PinHash)) +
		4 +
		4 + len(o.Value) + xdr.Padding(len(o.Value))
}

func (o ClipPayload) MarshalXDR() ([]byte, error) {
	buf := make([]byte, o.XDRSize())
	m := &xdr.Marshaller{Data: buf}
	err := o.MarshalXDRInto(m)
	return buf, err
}

func (o ClipPayload) MustMarshalXDR() []byte {
	bs, err := o.MarshalXDR()
	if err != nil {
		panic(err)
	}
	return bs
}

func (o ClipPayload) MarshalXDRInto(m *xdr.Marshaller) error {
	if len(o.ID) > maxIDLen {
		return xdr.ElementSizeExceeded("ID", len(o.ID), maxIDLen)
	}
	if len(o.PinHash) > maxPinHashLen {
		return xdr.ElementSizeExceeded("PinHash", len(o.PinHash), maxPinHashLen)
	}
	if len(o.Value) > maxValueLen {
		return xdr.ElementSizeExceeded("Value", len(o.Value), maxValueLen)
	}
	m.MarshalUint32(o.Magic)
	m.MarshalString(o.ID)
	m.MarshalBytes(o.PinHash)
	m.MarshalUint32(uint32(o.Kind))
	m.MarshalBytes(o.Value)
	return m.Error
}

func (o *ClipPayload) UnmarshalXDR(bs []byte) error {
	u := &xdr.Unmarshaller{Data: bs}
	return o.UnmarshalXDRFrom(u)
}

func (o *ClipPayload) UnmarshalXDRFrom(u *xdr.Unmarshaller) error {
	o.Magic = u.UnmarshalUint32()
	o.ID = u.UnmarshalStringMax(maxIDLen)
	o.PinHash = u.UnmarshalBytesMax(maxPinHashLen)
	o.Kind = Kind(u.UnmarshalUint32())
	o.Value = u.UnmarshalBytesMax(maxValueLen)
	return u.Error
}
