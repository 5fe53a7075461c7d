package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory/internal/models"
)

func TestEncodeKeysByParent(t *testing.T) {
	img := &models.ImageRecord{ID: 7, ParentID: 3, ImagePath: "resized-a.jpg"}
	msg, err := encode(Event{Type: ImageCreated, ParentType: models.Products, ParentID: 3, ImageID: 7, Image: img})
	require.NoError(t, err)

	assert.Equal(t, "products:3", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "image.created", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ImageCreated, decoded.Type)
	assert.Equal(t, int64(7), decoded.ImageID)
	assert.Equal(t, "resized-a.jpg", decoded.Image.ImagePath)
	assert.WithinDuration(t, time.Now(), decoded.At, time.Minute)
}

func TestNewPublisherWithoutBrokerIsNop(t *testing.T) {
	p := NewPublisher("", "topic", zerolog.Nop())
	_, ok := p.(Nop)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}

func TestKafkaWriterDoesNotHoldCallers(t *testing.T) {
	k := NewKafka("127.0.0.1:9092", "inventory.images", zerolog.Nop())
	defer k.Close()

	assert.True(t, k.writer.Async)
	assert.Equal(t, batchTimeout, k.writer.BatchTimeout)
	assert.NotNil(t, k.writer.Completion)
	assert.Equal(t, "inventory.images", k.writer.Topic)
}
