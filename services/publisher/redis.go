package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/rand/v2"
	"strconv"

	"github.com/redis/go-redis/v9"

	"sjsage522/productharvester/internal/crawler"
)

// NotificationKey is the stream field carrying a base64 encoded Notification
const NotificationKey = "b64_product"

var _ StreamPublisher = (*RedisPublisher)(nil)

// Notification announces one record created through the content API
type Notification struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	Dialect    string `json:"dialect"`
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	ProductURL string `json:"product_url"`
	ImageURL   string `json:"image_url"`
}

// NewNotification describes rec as published under id
func NewNotification(id, runID, dialect string, rec crawler.ProductRecord) Notification {
	return Notification{
		ID:         id,
		RunID:      runID,
		Dialect:    dialect,
		Title:      rec.Title,
		Price:      rec.Price,
		ProductURL: rec.ProductURL,
		ImageURL:   rec.ImageURL,
	}
}

// Marshal encodes the notification as JSON
func (n Notification) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

// RedisPublisher implements StreamPublisher using Redis streams
type RedisPublisher struct {
	client          *redis.Client
	ctx             context.Context
	streamPrefix    string
	streamCount     int
	streamMaxLength int
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(ctx context.Context, addr string, db int, streamPrefix string, streamCount int, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if streamCount <= 0 {
		streamCount = 1
	}

	return &RedisPublisher{
		client:          client,
		ctx:             ctx,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
	}
}

// Ping checks that Redis is reachable
func (p *RedisPublisher) Ping() error {
	return p.client.Ping(p.ctx).Err()
}

// Publish publishes a message to a Redis stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(key string, message []byte) error {
	// Base64 encode the message
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	// random stream name by streamCount
	// if streamCount is 10, stream name will be stream:0 ~ stream:9
	stream := p.streamPrefix + ":" + strconv.Itoa(rand.IntN(p.streamCount))

	// Publish to Redis
	return p.client.XAdd(p.ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			key: encodedMessage,
		},
	}).Err()
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams() error {
	for i := 0; i < p.streamCount; i++ {
		stream := p.streamPrefix + ":" + strconv.Itoa(i)
		if err := p.client.XTrimMaxLen(p.ctx, stream, int64(p.streamMaxLength)).Err(); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
