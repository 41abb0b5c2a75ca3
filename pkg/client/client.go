package client

import (
	"context"
	"time"

	"wheelshare/pkg/logger"
)

// Client aggregates the external connections the service owns.
type Client struct {
	Mongo *MongoClient
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, uri string, connTimeout time.Duration) {
	c.Mongo = NewMongoClient(log, uri, connTimeout)
}

func (c *Client) GracefulShutdown() {
	if c.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Mongo.Client.Disconnect(ctx)
	}
}
