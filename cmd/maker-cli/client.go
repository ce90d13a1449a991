package main

import (
	"fmt"
	"net"
	"time"

	"github.com/coinswapd/maker/rpcwire"
)

type rpcClient struct {
	conn net.Conn
}

func dial(rpcAddr string) (*rpcClient, error) {
	conn, err := net.DialTimeout("tcp", rpcAddr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("maker-cli: failed to connect to %s: %w", rpcAddr, err)
	}
	return &rpcClient{conn: conn}, nil
}

func (c *rpcClient) Close() error {
	return c.conn.Close()
}

func (c *rpcClient) call(req rpcwire.Message) (rpcwire.Message, error) {
	if err := rpcwire.WriteMessage(c.conn, req); err != nil {
		return nil, fmt.Errorf("maker-cli: request failed: %w", err)
	}
	reply, err := rpcwire.ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("maker-cli: reading reply failed: %w", err)
	}
	if errMsg, ok := reply.(*rpcwire.ErrorMsg); ok {
		return nil, fmt.Errorf("maker-cli: daemon error: %s", errMsg.Reason)
	}
	return reply, nil
}
