package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/imrishuroy/resto-orderflow/internal/aws"
)

// defaultTxAttempts bounds optimistic retries of a transaction body.
const defaultTxAttempts = 5

// Dynamo is the DynamoDB-backed Adapter. Documents live one table per
// collection, keyed by an "id" string attribute, and carry a doc_version
// counter that commits are conditioned on.
type Dynamo struct {
	client      aws.DynamoDBAPI
	maxAttempts int
}

// NewDynamo returns an Adapter over the given DynamoDB client.
func NewDynamo(client aws.DynamoDBAPI) *Dynamo {
	return &Dynamo{client: client, maxAttempts: defaultTxAttempts}
}

func (d *Dynamo) NewID() string { return uuid.NewString() }

// Get reads one document outside any transaction.
func (d *Dynamo) Get(ctx context.Context, key Key, out interface{}) error {
	item, _, err := d.read(ctx, key)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", key.Table, key.ID, err)
	}
	return nil
}

// RunTransaction runs fn against a fresh Tx and commits its staged writes
// with TransactWriteItems, each write conditioned on the document version fn
// observed. When a concurrent writer invalidates any of those versions the
// body is re-run from scratch, up to the attempt budget.
func (d *Dynamo) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		tx := &dynTx{
			d:     d,
			reads: map[Key]int64{},
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if len(tx.writes) == 0 {
			return nil
		}
		err := d.commit(ctx, tx)
		if err == nil {
			return nil
		}
		if isTxConflict(err) {
			continue
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return ErrTooManyConflicts
}

func (d *Dynamo) read(ctx context.Context, key Key) (Item, int64, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &key.Table,
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: key.ID}},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get item %s/%s: %w", key.Table, key.ID, err)
	}
	if len(out.Item) == 0 {
		return nil, 0, nil
	}
	return out.Item, itemVersion(out.Item), nil
}

func (d *Dynamo) commit(ctx context.Context, tx *dynTx) error {
	items := make([]types.TransactWriteItem, 0, len(tx.writes)+len(tx.reads))
	written := map[Key]bool{}
	for _, w := range tx.writes {
		items = append(items, w.toTransactItem())
		written[w.key] = true
	}
	// Condition-check the documents fn read but did not write, so the
	// decision the body took still holds at commit time.
	for _, key := range sortedKeys(tx.reads) {
		if written[key] {
			continue
		}
		items = append(items, types.TransactWriteItem{
			ConditionCheck: versionCheck(key, tx.reads[key]),
		})
	}
	_, err := d.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	return err
}

// dynTx stages one transaction body's reads and writes.
type dynTx struct {
	d      *Dynamo
	reads  map[Key]int64
	writes []stagedWrite
}

type stagedWrite struct {
	key      Key
	expected int64
	put      Item                            // full document, nil for updates
	fields   map[string]types.AttributeValue // partial update, nil for puts
}

func (t *dynTx) Get(ctx context.Context, key Key, out interface{}) error {
	item, version, err := t.d.read(ctx, key)
	if err != nil {
		return err
	}
	t.reads[key] = version
	if item == nil {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", key.Table, key.ID, err)
	}
	return nil
}

func (t *dynTx) Put(key Key, doc interface{}) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", key.Table, key.ID, err)
	}
	expected := t.reads[key] // zero when unread: commit requires the document to not exist
	item["id"] = &types.AttributeValueMemberS{Value: key.ID}
	item[VersionAttr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expected+1, 10)}
	t.writes = append(t.writes, stagedWrite{key: key, expected: expected, put: item})
	return nil
}

func (t *dynTx) Update(key Key, fields map[string]interface{}) error {
	expected, read := t.reads[key]
	if !read || expected == 0 {
		return fmt.Errorf("update of unread document %s/%s", key.Table, key.ID)
	}
	avs := make(map[string]types.AttributeValue, len(fields))
	for name, v := range fields {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal field %s of %s/%s: %w", name, key.Table, key.ID, err)
		}
		avs[name] = av
	}
	t.writes = append(t.writes, stagedWrite{key: key, expected: expected, fields: avs})
	return nil
}

func (w stagedWrite) toTransactItem() types.TransactWriteItem {
	if w.put != nil {
		put := &types.Put{
			TableName: &w.key.Table,
			Item:      w.put,
		}
		if w.expected == 0 {
			put.ConditionExpression = awsString("attribute_not_exists(id)")
		} else {
			put.ConditionExpression = awsString(VersionAttr + " = :ver")
			put.ExpressionAttributeValues = map[string]types.AttributeValue{
				":ver": &types.AttributeValueMemberN{Value: strconv.FormatInt(w.expected, 10)},
			}
		}
		return types.TransactWriteItem{Put: put}
	}

	// Partial update: SET each field through a #name alias (field names such
	// as "status" collide with DynamoDB reserved words) and bump the version.
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":ver":  &types.AttributeValueMemberN{Value: strconv.FormatInt(w.expected, 10)},
		":nver": &types.AttributeValueMemberN{Value: strconv.FormatInt(w.expected+1, 10)},
	}
	expr := "SET " + VersionAttr + " = :nver"
	i := 0
	for _, name := range sortedFieldNames(w.fields) {
		alias := fmt.Sprintf("#f%d", i)
		placeholder := fmt.Sprintf(":f%d", i)
		names[alias] = name
		values[placeholder] = w.fields[name]
		expr += fmt.Sprintf(", %s = %s", alias, placeholder)
		i++
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 &w.key.Table,
			Key:                       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: w.key.ID}},
			UpdateExpression:          &expr,
			ConditionExpression:       awsString(VersionAttr + " = :ver"),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		},
	}
}

func versionCheck(key Key, version int64) *types.ConditionCheck {
	check := &types.ConditionCheck{
		TableName: &key.Table,
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: key.ID}},
	}
	if version == 0 {
		check.ConditionExpression = awsString("attribute_not_exists(id)")
		return check
	}
	check.ConditionExpression = awsString(VersionAttr + " = :ver")
	check.ExpressionAttributeValues = map[string]types.AttributeValue{
		":ver": &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
	}
	return check
}

// isTxConflict reports whether a TransactWriteItems failure was caused by a
// lost optimistic race rather than a hard error.
func isTxConflict(err error) bool {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed", "TransactionConflict":
				return true
			}
		}
		return false
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "TransactionConflictException"
}

func sortedKeys(m map[Key]int64) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Table != keys[j].Table {
			return keys[i].Table < keys[j].Table
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

func sortedFieldNames(m map[string]types.AttributeValue) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
