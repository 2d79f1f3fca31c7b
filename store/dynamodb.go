package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatclient/models"
)

const (
	ChatsTable    = "Chats"
	MessagesTable = "Messages"
)

// DynamoAPI is the part of the DynamoDB client the store uses.
type DynamoAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Dynamo stores chats keyed by (UserID, ID) and messages keyed by
// (ChatID, SortKey) where SortKey is the creation timestamp plus the id.
type Dynamo struct {
	db    DynamoAPI
	clock *Clock
	log   *zap.Logger
}

// NewDynamoClient connects to a DynamoDB endpoint such as DynamoDB Local.
func NewDynamoClient(ctx context.Context, endpoint, region string) (*dynamodb.Client, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint}, nil
	})

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID: "dummy", SecretAccessKey: "dummy", SessionToken: "dummy",
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func NewDynamo(db DynamoAPI, log *zap.Logger) *Dynamo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dynamo{db: db, clock: NewClock(), log: log}
}

// EnsureTables creates both tables, ignoring tables that already exist.
func (d *Dynamo) EnsureTables(ctx context.Context) error {
	tables := []struct {
		name, hash, rng string
	}{
		{ChatsTable, "UserID", "ID"},
		{MessagesTable, "ChatID", "SortKey"},
	}
	for _, t := range tables {
		_, err := d.db.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(t.name),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(t.hash), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(t.rng), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(t.hash), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(t.rng), KeyType: types.KeyTypeRange},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			d.log.Debug("table already exists", zap.String("table", t.name))
			continue
		}
		if err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}
	return nil
}

func (d *Dynamo) ListChats(ctx context.Context, userID string) ([]models.Conversation, error) {
	items, err := d.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(ChatsTable),
		KeyConditionExpression: aws.String("UserID = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	convs := make([]models.Conversation, 0, len(items))
	for _, item := range items {
		conv, err := chatFromItem(item)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	models.SortConversations(convs)
	return convs, nil
}

func (d *Dynamo) GetChat(ctx context.Context, userID, chatID string) (models.Conversation, error) {
	out, err := d.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(ChatsTable),
		Key:       chatKey(userID, chatID),
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("get chat: %w", err)
	}
	if len(out.Item) == 0 {
		return models.Conversation{}, ErrNotFound
	}
	return chatFromItem(out.Item)
}

func (d *Dynamo) CreateChat(ctx context.Context, userID, title string) (models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	now := d.clock.Now()
	conv := models.Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ChatsTable),
		Item:      chatItem(userID, conv),
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("put chat: %w", err)
	}
	return conv, nil
}

func (d *Dynamo) UpdateChatTitle(ctx context.Context, userID, chatID, title string) (models.Conversation, error) {
	out, err := d.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(ChatsTable),
		Key:                 chatKey(userID, chatID),
		ConditionExpression: aws.String("attribute_exists(ID)"),
		UpdateExpression:    aws.String("SET Title = :title, UpdatedAt = :ts"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":title": &types.AttributeValueMemberS{Value: title},
			":ts":    &types.AttributeValueMemberS{Value: FormatTimestamp(d.clock.Now())},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return models.Conversation{}, notFoundOr(err, "update chat")
	}
	return chatFromItem(out.Attributes)
}

func (d *Dynamo) DeleteChat(ctx context.Context, userID, chatID string) error {
	_, err := d.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(ChatsTable),
		Key:                 chatKey(userID, chatID),
		ConditionExpression: aws.String("attribute_exists(ID)"),
	})
	if err != nil {
		return notFoundOr(err, "delete chat")
	}

	items, err := d.messageItems(ctx, chatID)
	if err != nil {
		return err
	}
	for _, item := range items {
		_, err := d.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(MessagesTable),
			Key: map[string]types.AttributeValue{
				"ChatID":  item["ChatID"],
				"SortKey": item["SortKey"],
			},
		})
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
	}
	return nil
}

func (d *Dynamo) Messages(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	if _, err := d.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	items, err := d.messageItems(ctx, chatID)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(items))
	for _, item := range items {
		msg, err := messageFromItem(item)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (d *Dynamo) InsertMessage(ctx context.Context, userID, chatID, content string, fromBot bool) (models.Message, error) {
	msg := models.Message{
		ID:             uuid.New().String(),
		ConversationID: chatID,
		Content:        content,
		FromBot:        fromBot,
		CreatedAt:      d.clock.Now(),
	}
	if !fromBot {
		author := userID
		msg.UserID = &author
	}

	// Bumping the chat first doubles as the ownership check.
	_, err := d.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(ChatsTable),
		Key:                 chatKey(userID, chatID),
		ConditionExpression: aws.String("attribute_exists(ID)"),
		UpdateExpression:    aws.String("SET UpdatedAt = :ts ADD MessageCount :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts":  &types.AttributeValueMemberS{Value: FormatTimestamp(msg.CreatedAt)},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return models.Message{}, notFoundOr(err, "bump chat")
	}

	_, err = d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(MessagesTable),
		Item:      messageItem(msg),
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("put message: %w", err)
	}
	return msg, nil
}

func (d *Dynamo) messageItems(ctx context.Context, chatID string) ([]map[string]types.AttributeValue, error) {
	items, err := d.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(MessagesTable),
		KeyConditionExpression: aws.String("ChatID = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: chatID},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return items, nil
}

// queryAll follows LastEvaluatedKey until the result set is exhausted.
func (d *Dynamo) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	page := *in
	for {
		result, err := d.db.Query(ctx, &page)
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			return items, nil
		}
		page.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func notFoundOr(err error, op string) error {
	var failed *types.ConditionalCheckFailedException
	if errors.As(err, &failed) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func chatKey(userID, chatID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"UserID": &types.AttributeValueMemberS{Value: userID},
		"ID":     &types.AttributeValueMemberS{Value: chatID},
	}
}

func chatItem(userID string, c models.Conversation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"UserID":       &types.AttributeValueMemberS{Value: userID},
		"ID":           &types.AttributeValueMemberS{Value: c.ID},
		"Title":        &types.AttributeValueMemberS{Value: c.Title},
		"CreatedAt":    &types.AttributeValueMemberS{Value: FormatTimestamp(c.CreatedAt)},
		"UpdatedAt":    &types.AttributeValueMemberS{Value: FormatTimestamp(c.UpdatedAt)},
		"MessageCount": &types.AttributeValueMemberN{Value: strconv.Itoa(c.MessageCount)},
	}
}

func chatFromItem(item map[string]types.AttributeValue) (models.Conversation, error) {
	var conv models.Conversation
	var err error
	conv.ID = stringAttr(item, "ID")
	conv.Title = stringAttr(item, "Title")
	if conv.CreatedAt, err = ParseTimestamp(stringAttr(item, "CreatedAt")); err != nil {
		return conv, fmt.Errorf("chat %s: created_at: %w", conv.ID, err)
	}
	if conv.UpdatedAt, err = ParseTimestamp(stringAttr(item, "UpdatedAt")); err != nil {
		return conv, fmt.Errorf("chat %s: updated_at: %w", conv.ID, err)
	}
	if n, ok := item["MessageCount"].(*types.AttributeValueMemberN); ok {
		conv.MessageCount, _ = strconv.Atoi(n.Value)
	}
	return conv, nil
}

func messageItem(m models.Message) map[string]types.AttributeValue {
	ts := FormatTimestamp(m.CreatedAt)
	item := map[string]types.AttributeValue{
		"ChatID":    &types.AttributeValueMemberS{Value: m.ConversationID},
		"SortKey":   &types.AttributeValueMemberS{Value: ts + "#" + m.ID},
		"ID":        &types.AttributeValueMemberS{Value: m.ID},
		"Content":   &types.AttributeValueMemberS{Value: m.Content},
		"IsBot":     &types.AttributeValueMemberBOOL{Value: m.FromBot},
		"CreatedAt": &types.AttributeValueMemberS{Value: ts},
	}
	if m.UserID != nil {
		item["UserID"] = &types.AttributeValueMemberS{Value: *m.UserID}
	}
	return item
}

func messageFromItem(item map[string]types.AttributeValue) (models.Message, error) {
	msg := models.Message{
		ID:             stringAttr(item, "ID"),
		ConversationID: stringAttr(item, "ChatID"),
		Content:        stringAttr(item, "Content"),
	}
	if b, ok := item["IsBot"].(*types.AttributeValueMemberBOOL); ok {
		msg.FromBot = b.Value
	}
	if u, ok := item["UserID"].(*types.AttributeValueMemberS); ok {
		author := u.Value
		msg.UserID = &author
	}
	created, err := ParseTimestamp(stringAttr(item, "CreatedAt"))
	if err != nil {
		return msg, fmt.Errorf("message %s: created_at: %w", msg.ID, err)
	}
	msg.CreatedAt = created
	return msg, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
