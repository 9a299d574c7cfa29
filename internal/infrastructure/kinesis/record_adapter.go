package kinesis

import (
	"encoding/json"
	"fmt"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/btc-guess/internal/domain/guess"
	"github.com/example/btc-guess/internal/events"
	"github.com/example/btc-guess/internal/infrastructure/store"
)

// streamRecord is a DynamoDB change record as delivered through Kinesis.
// The Kinesis format carries the source table name at the top level.
type streamRecord struct {
	lambdaevents.DynamoDBEventRecord
	TableName string `json:"tableName"`
}

// GuessStreamAdapter turns guess table changes into GuessResolved events.
type GuessStreamAdapter struct {
	guessesTable string
}

// NewGuessStreamAdapter creates an adapter that ignores records from any
// table other than guessesTable. An empty name accepts every table.
func NewGuessStreamAdapter(guessesTable string) *GuessStreamAdapter {
	return &GuessStreamAdapter{guessesTable: guessesTable}
}

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format).
// It returns nil, nil for records that are not a guess resolution.
func (a *GuessStreamAdapter) ConvertFromKinesisRecord(record lambdaevents.KinesisEventRecord) (*events.GuessResolved, error) {
	var rec streamRecord
	if err := json.Unmarshal(record.Kinesis.Data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}

	if a.guessesTable != "" && rec.TableName != "" && rec.TableName != a.guessesTable {
		return nil, nil
	}
	return a.ConvertFromDynamoDBStreamRecord(rec.DynamoDBEventRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record.
// Only a MODIFY whose old image is unresolved and whose new image is
// resolved yields an event. A missing old image counts as unresolved since
// a resolved guess is never written again.
func (a *GuessStreamAdapter) ConvertFromDynamoDBStreamRecord(record lambdaevents.DynamoDBEventRecord) (*events.GuessResolved, error) {
	if record.EventName != string(lambdaevents.DynamoDBOperationTypeModify) {
		return nil, nil
	}

	after, err := decodeGuess(record.Change.NewImage)
	if err != nil {
		return nil, err
	}
	if after.Outcome == guess.Unresolved {
		return nil, nil
	}

	if record.Change.OldImage != nil {
		before, err := decodeGuess(record.Change.OldImage)
		if err != nil {
			return nil, err
		}
		if before.Outcome != guess.Unresolved {
			return nil, nil
		}
	}

	resolved := &events.GuessResolved{
		GuessID:         after.ID,
		UserID:          after.UserID,
		PriceSnapshotID: after.PriceSnapshotID,
		Direction:       string(after.Direction),
		IsCorrect:       after.Outcome == guess.Correct,
		ScoreDelta:      after.Outcome.Delta(),
	}
	if after.ResolvedAt != nil {
		resolved.ResolvedAt = *after.ResolvedAt
	}
	return resolved, nil
}

// BatchConvertFromKinesisEvent converts all records of a Kinesis event.
// Returns the resolutions found and any errors encountered.
func (a *GuessStreamAdapter) BatchConvertFromKinesisEvent(kinesisEvent lambdaevents.KinesisEvent) ([]*events.GuessResolved, []error) {
	var resolved []*events.GuessResolved
	var errs []error

	for _, record := range kinesisEvent.Records {
		event, err := a.ConvertFromKinesisRecord(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", record.EventID, err))
			continue
		}
		if event != nil {
			resolved = append(resolved, event)
		}
	}

	return resolved, errs
}

func decodeGuess(image map[string]lambdaevents.DynamoDBAttributeValue) (*guess.Guess, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	item, err := ConvertImage(image)
	if err != nil {
		return nil, err
	}

	g, err := guess.Decode(item)
	if err != nil {
		return nil, err
	}
	if g.ID == "" || g.UserID == "" {
		return nil, fmt.Errorf("missing required fields: id=%s, userId=%s", g.ID, g.UserID)
	}
	return g, nil
}

// ConvertImage maps a stream image onto the SDK attribute value types used by the store
func ConvertImage(image map[string]lambdaevents.DynamoDBAttributeValue) (store.Item, error) {
	item := make(store.Item, len(image))
	for name, av := range image {
		converted, err := convertAttribute(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		item[name] = converted
	}
	return item, nil
}

func convertAttribute(av lambdaevents.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch av.DataType() {
	case lambdaevents.DataTypeString:
		return &types.AttributeValueMemberS{Value: av.String()}, nil
	case lambdaevents.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: av.Number()}, nil
	case lambdaevents.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: av.Boolean()}, nil
	case lambdaevents.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case lambdaevents.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: av.Binary()}, nil
	case lambdaevents.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: av.StringSet()}, nil
	case lambdaevents.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: av.NumberSet()}, nil
	case lambdaevents.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: av.BinarySet()}, nil
	case lambdaevents.DataTypeList:
		list := av.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, elem := range list {
			converted, err := convertAttribute(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case lambdaevents.DataTypeMap:
		converted, err := ConvertImage(av.Map())
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: converted}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %d", av.DataType())
	}
}
