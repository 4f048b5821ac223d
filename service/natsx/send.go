package natsx

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

func (c *NatsxClient) sendCore(subject string, data []byte, hdr map[string]string) error {
	// 用 NewMsg 构造更安全
	msg := nats.NewMsg(subject)
	msg.Data = data

	// 转换 header
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}

	// 直接发送
	if err := c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	return nil
}
