package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatclient/models"
)

func TestDynamoItemConversion(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 123000, time.UTC)
	conv := models.Conversation{ID: "c1", Title: "t", CreatedAt: created, UpdatedAt: created.Add(time.Minute), MessageCount: 4}

	back, err := chatFromItem(chatItem("alice", conv))
	require.NoError(t, err)
	assert.Equal(t, conv, back)

	author := "alice"
	msg := models.Message{ID: "m1", ConversationID: "c1", Content: "hi", UserID: &author, CreatedAt: created}
	gotMsg, err := messageFromItem(messageItem(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, gotMsg)

	bot := models.Message{ID: "m2", ConversationID: "c1", Content: "yo", FromBot: true, CreatedAt: created}
	gotBot, err := messageFromItem(messageItem(bot))
	require.NoError(t, err)
	assert.Nil(t, gotBot.UserID)
	assert.True(t, gotBot.FromBot)
}

// pagedQuery serves one item per Query call, like a table whose result
// set exceeds the 1MB page limit.
type pagedQuery struct {
	DynamoAPI
	pages [][]map[string]types.AttributeValue
	calls int
}

func (p *pagedQuery) Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	i := p.calls
	p.calls++
	if i > 0 && in.ExclusiveStartKey == nil {
		return nil, fmt.Errorf("page %d requested without a start key", i)
	}
	out := &dynamodb.QueryOutput{Items: p.pages[i]}
	if i < len(p.pages)-1 {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"ID": &types.AttributeValueMemberS{Value: fmt.Sprint(i)}}
	}
	return out, nil
}

func TestDynamoListChatsFollowsPages(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &pagedQuery{}
	for i := 0; i < 3; i++ {
		conv := models.Conversation{ID: fmt.Sprintf("c%d", i), Title: "t", CreatedAt: created, UpdatedAt: created.Add(time.Duration(i) * time.Minute)}
		api.pages = append(api.pages, []map[string]types.AttributeValue{chatItem("alice", conv)})
	}

	convs, err := NewDynamo(api, nil).ListChats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, api.calls)
	require.Len(t, convs, 3)
	assert.Equal(t, "c2", convs[0].ID)
}

// Runs against DynamoDB Local when DYNAMODB_ENDPOINT is set, e.g.
// DYNAMODB_ENDPOINT=http://localhost:8000.
func TestDynamoStore(t *testing.T) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_ENDPOINT not set")
	}
	ctx := context.Background()
	client, err := NewDynamoClient(ctx, endpoint, "us-east-1")
	require.NoError(t, err)

	d := NewDynamo(client, nil)
	require.NoError(t, d.EnsureTables(ctx))
	require.NoError(t, d.EnsureTables(ctx))

	exerciseStore(t, d)
}
