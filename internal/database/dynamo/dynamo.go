// Package dynamo implements the record store's durable backend on a DynamoDB
// table keyed by filename.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kozaktomas/photo-archive/internal/database"
)

const service = "dynamodb"

// faceIDsAttr is a string set of the record's face IDs, written next to the
// faces list so FindFace can filter on it.
const faceIDsAttr = "face_ids"

// Client is the subset of the DynamoDB API the backend uses.
type Client interface {
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Backend stores one item per PhotoRecord. Attribute names follow the
// record's JSON tags.
type Backend struct {
	client Client
	table  string
}

// New creates a Backend for table.
func New(client Client, table string) *Backend {
	return &Backend{client: client, table: table}
}

// NewFromConfig creates a Backend from a loaded AWS config.
func NewFromConfig(cfg aws.Config, table string) *Backend {
	return New(dynamodb.NewFromConfig(cfg), table)
}

func encoderOptions(o *attributevalue.EncoderOptions) { o.TagKey = "json" }
func decoderOptions(o *attributevalue.DecoderOptions) { o.TagKey = "json" }

// Scan pages through the whole table.
func (b *Backend) Scan(ctx context.Context, fn func(database.PhotoRecord) error) error {
	return b.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(b.table)}, fn)
}

func (b *Backend) scan(ctx context.Context, in *dynamodb.ScanInput, fn func(database.PhotoRecord) error) error {
	paginator := dynamodb.NewScanPaginator(b.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return database.NewServiceError(service, "Scan", err)
		}
		for _, item := range page.Items {
			var rec database.PhotoRecord
			if err := attributevalue.UnmarshalMapWithOptions(item, &rec, decoderOptions); err != nil {
				return fmt.Errorf("decoding item: %w", err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get reads one item with a strongly consistent read.
func (b *Backend) Get(ctx context.Context, filename string) (database.PhotoRecord, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            key(filename),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return database.PhotoRecord{}, database.NewServiceError(service, "GetItem", err)
	}
	if len(out.Item) == 0 {
		return database.PhotoRecord{}, fmt.Errorf("item %s: %w", filename, database.ErrNotFound)
	}
	var rec database.PhotoRecord
	if err := attributevalue.UnmarshalMapWithOptions(out.Item, &rec, decoderOptions); err != nil {
		return database.PhotoRecord{}, fmt.Errorf("decoding item %s: %w", filename, err)
	}
	return rec, nil
}

// errFound stops the FindFace scan at the first hit.
var errFound = errors.New("found")

// FindFace scans for the item whose face_ids set holds faceID. The table has
// no index on faces, so this reads the whole table in the worst case.
func (b *Backend) FindFace(ctx context.Context, faceID string) (database.PhotoRecord, error) {
	var found database.PhotoRecord
	err := b.scan(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(b.table),
		FilterExpression:         aws.String("contains(#ids, :id)"),
		ExpressionAttributeNames: map[string]string{"#ids": faceIDsAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: faceID},
		},
	}, func(rec database.PhotoRecord) error {
		found = rec
		return errFound
	})
	switch {
	case errors.Is(err, errFound):
		return found, nil
	case err != nil:
		return database.PhotoRecord{}, err
	}
	return database.PhotoRecord{}, fmt.Errorf("face %s: %w", faceID, database.ErrFaceNotFound)
}

func key(filename string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"filename": &types.AttributeValueMemberS{Value: filename},
	}
}

// Put writes the full item, replacing any previous version.
func (b *Backend) Put(ctx context.Context, rec database.PhotoRecord) error {
	item, err := attributevalue.MarshalMapWithOptions(rec, encoderOptions)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.Filename, err)
	}
	if len(rec.Faces) > 0 {
		ids := make([]string, len(rec.Faces))
		for i := range rec.Faces {
			ids[i] = rec.Faces[i].FaceID
		}
		item[faceIDsAttr] = &types.AttributeValueMemberSS{Value: ids}
	}
	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      item,
	})
	return database.NewServiceError(service, "PutItem", err)
}

// UpdateFaceName sets faces[faceIndex].person_name, conditioned on the face
// at that position still having faceID.
func (b *Backend) UpdateFaceName(ctx context.Context, filename string, faceIndex int, faceID, personName string) error {
	path := "#faces[" + strconv.Itoa(faceIndex) + "]"
	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(b.table),
		Key:                 key(filename),
		UpdateExpression:    aws.String("SET " + path + ".#name = :name"),
		ConditionExpression: aws.String(path + ".#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#faces": "faces",
			"#name":  "person_name",
			"#id":    "face_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name": &types.AttributeValueMemberS{Value: personName},
			":id":   &types.AttributeValueMemberS{Value: faceID},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("face %s at index %d of %s: %w", faceID, faceIndex, filename, database.ErrFaceNotFound)
		}
		return database.NewServiceError(service, "UpdateItem", err)
	}
	return nil
}

// Delete removes the item. DynamoDB treats deleting a missing key as success.
func (b *Backend) Delete(ctx context.Context, filename string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       key(filename),
	})
	return database.NewServiceError(service, "DeleteItem", err)
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (b *Backend) Close() error {
	return nil
}

var _ database.Backend = (*Backend)(nil)
