package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DisplaySender transmits one encoded display message.
type DisplaySender interface {
	Send(payload []byte) error
}

// DatagramSender writes each message as one datagram to the display driver's
// socket. Every call creates an unbound AF_UNIX/SOCK_DGRAM socket, sends and
// closes it; nothing is pooled. MSG_DONTWAIT keeps a stalled driver from
// blocking the daemon: a full receive queue is just another dropped send.
type DatagramSender struct {
	path string
}

// NewDatagramSender returns a sender targeting the socket at path.
func NewDatagramSender(path string) *DatagramSender {
	return &DatagramSender{path: path}
}

// Path returns the target socket path.
func (s *DatagramSender) Path() string { return s.path }

// Send hands payload to the kernel. A nil error means local hand-off, not delivery.
func (s *DatagramSender) Send(payload []byte) error {
	fd, err := openDatagramSocket()
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	if err := unix.Sendto(fd, payload, unix.MSG_DONTWAIT, &unix.SockaddrUnix{Name: s.path}); err != nil {
		return fmt.Errorf("send to %s: %w", s.path, err)
	}
	return nil
}

// openDatagramSocket creates an unbound AF_UNIX datagram socket, close-on-exec
// from the start.
func openDatagramSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("create datagram socket: %w", err)
	}
	return fd, nil
}
