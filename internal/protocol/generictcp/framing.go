package generictcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire framing for the generic TCP terminal family:
//
//	+--------+--------+----------------+---------+----------+
//	| magic  | cmd    | payload length | payload | checksum |
//	| uint16 | uint8  | uint32 BE      | N bytes | uint16   |
//	+--------+--------+----------------+---------+----------+
//
// The checksum is the 16-bit ones' sum of cmd and payload bytes.

const frameMagic uint16 = 0xAA55

const (
	cmdHandshake   = 0x01
	cmdPullLogs    = 0x10
	cmdEnrollStart = 0x20
	cmdSetTime     = 0x30

	replyOK           = 0x00
	replyAuthRequired = 0x01
	replyBusy         = 0x02
	replyUnsupported  = 0x03

	// enroll stream frame kinds
	enrollProgress = 0x01
	enrollDone     = 0x02
	enrollFailed   = 0x03
)

const maxPayload = 4 << 20

var (
	errBadMagic    = errors.New("bad frame magic")
	errBadChecksum = errors.New("frame checksum mismatch")
	errOversized   = errors.New("frame payload too large")
)

type frame struct {
	Cmd     byte
	Payload []byte
}

func checksum(cmd byte, payload []byte) uint16 {
	var sum uint32
	sum += uint32(cmd)
	for _, b := range payload {
		sum += uint32(b)
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return uint16(sum)
}

func writeFrame(w io.Writer, f frame) error {
	header := make([]byte, 7)
	binary.BigEndian.PutUint16(header[0:2], frameMagic)
	header[2] = f.Cmd
	binary.BigEndian.PutUint32(header[3:7], uint32(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}

	var trailer [2]byte
	binary.BigEndian.PutUint16(trailer[:], checksum(f.Cmd, f.Payload))
	_, err := w.Write(trailer[:])
	return err
}

func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 7)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}
	if binary.BigEndian.Uint16(header[0:2]) != frameMagic {
		return frame{}, errBadMagic
	}

	length := binary.BigEndian.Uint32(header[3:7])
	if length > maxPayload {
		return frame{}, errOversized
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return frame{}, err
	}

	var trailer [2]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return frame{}, err
	}
	if binary.BigEndian.Uint16(trailer[:]) != checksum(header[2], payload) {
		return frame{}, errBadChecksum
	}

	return frame{Cmd: header[2], Payload: payload}, nil
}

// putString appends a length-prefixed string.
func putString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, fmt.Errorf("short buffer reading string length")
	}
	n := int(binary.BigEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("short buffer reading string body")
	}
	return string(buf[:n]), buf[n:], nil
}
