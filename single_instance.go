package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"
)

const singleInstanceAddr = "127.0.0.1:49876"

var ErrAlreadyRunning = errors.New("another logger instance is already running")

// SingleInstance holds a loopback listener for as long as the logger runs.
// Two loggers appending to the same logbook would interleave rows and both
// record the same flight.
type SingleInstance struct {
	listener net.Listener
}

func NewSingleInstance() (*SingleInstance, error) {
	return newSingleInstanceAt(singleInstanceAddr)
}

func newSingleInstanceAt(addr string) (*SingleInstance, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		// Ask whoever holds the port who they are.
		conn, dialErr := net.DialTimeout("tcp", addr, time.Second)
		if dialErr == nil {
			conn.SetReadDeadline(time.Now().Add(time.Second))
			buf := make([]byte, 64)
			n, _ := conn.Read(buf)
			conn.Close()
			if n > 0 {
				return nil, fmt.Errorf("%w: pid %s", ErrAlreadyRunning, buf[:n])
			}
		}
		return nil, ErrAlreadyRunning
	}

	si := &SingleInstance{listener: listener}
	go si.listenLoop()
	return si, nil
}

func (si *SingleInstance) Close() error {
	return si.listener.Close()
}

func (si *SingleInstance) listenLoop() {
	for {
		conn, err := si.listener.Accept()
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, processID()); err != nil {
			slog.Debug("single instance probe", "error", err)
		}
		conn.Close()
	}
}

func processID() string {
	return strconv.Itoa(os.Getpid())
}
