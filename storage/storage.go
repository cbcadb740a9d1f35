// Package storage implements the document database and the cleanup queue on
// top of Azure Storage, plus a SQLite document store for local runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

type tableClient interface {
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// Tables stores documents in Azure Table Storage, one table per collection.
// The owner is the partition key and the document id the row key.
type Tables struct {
	tables map[baas.Collection]tableClient
}

var retryOptions = policy.RetryOptions{
	MaxRetries:    3,
	TryTimeout:    time.Minute * 3,
	RetryDelay:    time.Second * 1,
	MaxRetryDelay: time.Second * 15,
	StatusCodes:   []int{408, 429, 500, 502, 503, 504},
}

// NewTables creates a Tables instance from the given connection string.
// names maps each collection to its table name.
func NewTables(connStr string, names map[baas.Collection]string) (*Tables, error) {
	opts := aztables.ClientOptions{ClientOptions: azcore.ClientOptions{Retry: retryOptions}}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	t := &Tables{tables: make(map[baas.Collection]tableClient, len(names))}
	for c, name := range names {
		if name == "" {
			return nil, fmt.Errorf("storage: no table configured for %s", c)
		}
		t.tables[c] = svc.NewClient(name)
	}
	return t, nil
}

func (t *Tables) table(c baas.Collection) (tableClient, error) {
	tc, ok := t.tables[c]
	if !ok {
		return nil, fmt.Errorf("storage: unknown collection %s", c)
	}
	return tc, nil
}

// List returns every entity in the owner's partition.
func (t *Tables) List(ctx context.Context, c baas.Collection, ownerID string) ([]baas.Document, error) {
	tc, err := t.table(c)
	if err != nil {
		return nil, err
	}
	filter := "PartitionKey eq '" + escapeFilter(ownerID) + "'"
	pager := tc.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	docs := []baas.Document{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, e := range resp.Entities {
			d, err := decodeEntity(e)
			if err != nil {
				return nil, err
			}
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// Create inserts a new entity. An empty id gets a random UUID.
func (t *Tables) Create(ctx context.Context, c baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	tc, err := t.table(c)
	if err != nil {
		return baas.Document{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	d := baas.Document{ID: id, OwnerID: ownerID, Fields: fields}
	data, err := encodeEntity(d)
	if err != nil {
		return baas.Document{}, err
	}
	if _, err := tc.AddEntity(ctx, data, nil); err != nil {
		return baas.Document{}, mapError(err)
	}
	return d, nil
}

// Update merges fields into an existing entity and reads it back.
func (t *Tables) Update(ctx context.Context, c baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	tc, err := t.table(c)
	if err != nil {
		return baas.Document{}, err
	}
	data, err := encodeEntity(baas.Document{ID: id, OwnerID: ownerID, Fields: fields})
	if err != nil {
		return baas.Document{}, err
	}
	et := azcore.ETagAny
	if _, err := tc.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return baas.Document{}, mapError(err)
	}
	resp, err := tc.GetEntity(ctx, ownerID, id, nil)
	if err != nil {
		return baas.Document{}, mapError(err)
	}
	return decodeEntity(resp.Value)
}

// Delete removes an entity from the owner's partition.
func (t *Tables) Delete(ctx context.Context, c baas.Collection, ownerID, id string) error {
	tc, err := t.table(c)
	if err != nil {
		return err
	}
	if _, err := tc.DeleteEntity(ctx, ownerID, id, nil); err != nil {
		return mapError(err)
	}
	return nil
}

func escapeFilter(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func encodeEntity(d baas.Document) ([]byte, error) {
	ent := make(map[string]any, len(d.Fields)+2)
	for k, v := range d.Fields {
		ent[k] = v
	}
	ent["PartitionKey"] = d.OwnerID
	ent["RowKey"] = d.ID
	return sonic.Marshal(ent)
}

func decodeEntity(data []byte) (baas.Document, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return baas.Document{}, fmt.Errorf("decode entity: %w", err)
	}
	d := baas.Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch {
		case k == "PartitionKey":
			d.OwnerID, _ = v.(string)
		case k == "RowKey":
			d.ID, _ = v.(string)
		case k == "Timestamp", strings.HasPrefix(k, "odata."), strings.Contains(k, "@odata."):
		default:
			d.Fields[k] = v
		}
	}
	if d.ID == "" || d.OwnerID == "" {
		return baas.Document{}, errors.New("decode entity: missing keys")
	}
	return d, nil
}

// mapError translates Azure status codes into domain sentinels.
func mapError(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return err
}
