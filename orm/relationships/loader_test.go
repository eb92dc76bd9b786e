package relationships_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metabor/salesforce-orm/orm/entity"
	"github.com/Metabor/salesforce-orm/orm/mapper"
	"github.com/Metabor/salesforce-orm/orm/metadata"
	"github.com/Metabor/salesforce-orm/orm/relationships"
)

type Account struct {
	entity.Entity `sforce:"object=Account"`

	Name *string `sforce:"Name"`

	Contacts []*Contact `relation:"many,eager,name=Contacts"`
}

type Contact struct {
	entity.Entity `sforce:"object=Contact"`

	FirstName *string `sforce:"FirstName"`
	AccountID *string `sforce:"AccountId"`

	Account *Account `relation:"one,eager,fk=AccountId"`
}

type Lead struct {
	entity.Entity `sforce:"object=Lead"`

	Name *string `sforce:"Name"`

	Owner *Lead `relation:"one,eager,fk=OwnerId"`
}

// stubSource serves canned records and counts fetches
type stubSource struct {
	records map[string]map[string]interface{}            // "type/id"
	related map[string][]map[string]interface{}          // "type/id/relationship"
	calls   []string
}

func (s *stubSource) Record(ctx context.Context, objectType, id string, fields []string) (map[string]interface{}, error) {
	s.calls = append(s.calls, "record "+objectType+"/"+id)
	record, ok := s.records[objectType+"/"+id]
	if !ok {
		return nil, fmt.Errorf("no record %s/%s", objectType, id)
	}
	return record, nil
}

func (s *stubSource) RelatedRecords(ctx context.Context, objectType, id, relationship string) ([]map[string]interface{}, error) {
	s.calls = append(s.calls, "related "+objectType+"/"+id+"/"+relationship)
	return s.related[objectType+"/"+id+"/"+relationship], nil
}

func newLoader(source *stubSource) (*relationships.Loader, *mapper.Mapper) {
	m := mapper.New(mapper.WithRegistry(metadata.NewRegistry()))
	return relationships.NewLoader(source, m), m
}

func TestLoader_LoadOne(t *testing.T) {
	source := &stubSource{
		records: map[string]map[string]interface{}{
			"Account/001A": {"Name": "Acme"},
		},
	}
	loader, m := newLoader(source)

	c := &Contact{}
	record := map[string]interface{}{"FirstName": "Ann", "AccountId": "001A"}
	require.NoError(t, m.Patch(c, record))

	require.NoError(t, loader.Load(context.Background(), c, record))

	require.NotNil(t, c.Account)
	assert.Equal(t, "Acme", *c.Account.Name)
	assert.Equal(t, "001A", c.Account.ID())
	assert.False(t, c.Account.IsNew(), "loaded relations come from the store")
	assert.True(t, c.Account.IsPatched())
}

func TestLoader_LoadOneWithoutForeignKey(t *testing.T) {
	source := &stubSource{}
	loader, m := newLoader(source)

	c := &Contact{}
	record := map[string]interface{}{"FirstName": "Ann"}
	require.NoError(t, m.Patch(c, record))

	require.NoError(t, loader.Load(context.Background(), c, record))

	assert.Nil(t, c.Account, "unset lookup loads nothing")
	assert.Empty(t, source.calls)
}

func TestLoader_LoadMany(t *testing.T) {
	source := &stubSource{
		related: map[string][]map[string]interface{}{
			"Account/001A/Contacts": {
				{"Id": "003A", "FirstName": "Ann"},
				{"Id": "003B", "FirstName": "Ben"},
			},
		},
	}
	loader, m := newLoader(source)

	a := &Account{}
	record := map[string]interface{}{"Name": "Acme"}
	require.NoError(t, m.Patch(a, record))
	a.SetID("001A")

	require.NoError(t, loader.Load(context.Background(), a, record))

	require.Len(t, a.Contacts, 2)
	assert.Equal(t, "Ann", *a.Contacts[0].FirstName)
	assert.Equal(t, "003B", a.Contacts[1].ID())
}

func TestLoader_LoadManySkipsUnpersistedParent(t *testing.T) {
	source := &stubSource{}
	loader, m := newLoader(source)

	a := &Account{}
	require.NoError(t, m.Patch(a, nil))

	require.NoError(t, loader.Load(context.Background(), a, nil))
	assert.Empty(t, source.calls, "a parent without an id has no children to traverse")
}

func TestLoader_NestedLoadStopsOnCycle(t *testing.T) {
	// Contact eagerly loads its Account, which eagerly loads its Contacts,
	// whose Account relation would recurse into Account again.
	source := &stubSource{
		records: map[string]map[string]interface{}{
			"Account/001A": {"Name": "Acme"},
		},
		related: map[string][]map[string]interface{}{
			"Account/001A/Contacts": {
				{"Id": "003A", "FirstName": "Ann", "AccountId": "001A"},
			},
		},
	}
	loader, m := newLoader(source)

	c := &Contact{}
	record := map[string]interface{}{"FirstName": "Root", "AccountId": "001A"}
	require.NoError(t, m.Patch(c, record))

	require.NoError(t, loader.Load(context.Background(), c, record))

	require.NotNil(t, c.Account)
	require.Len(t, c.Account.Contacts, 1)
	nested := c.Account.Contacts[0]
	assert.Nil(t, nested.Account, "cycle back into Account is cut off")
}

func TestLoader_SelfReferenceDoesNotRecurse(t *testing.T) {
	source := &stubSource{
		records: map[string]map[string]interface{}{
			"Lead/00QB": {"Name": "Boss", "OwnerId": "00QC"},
		},
	}
	loader, m := newLoader(source)

	l := &Lead{}
	record := map[string]interface{}{"Name": "Rep", "OwnerId": "00QB"}
	require.NoError(t, m.Patch(l, record))

	require.NoError(t, loader.Load(context.Background(), l, record))

	require.NotNil(t, l.Owner)
	assert.Equal(t, "Boss", *l.Owner.Name)
	assert.Nil(t, l.Owner.Owner, "self-referential relation loads one level only")
}

func TestLoader_SourceErrorPropagates(t *testing.T) {
	source := &stubSource{} // no records seeded
	loader, m := newLoader(source)

	c := &Contact{}
	record := map[string]interface{}{"AccountId": "001MISSING"}
	require.NoError(t, m.Patch(c, record))

	err := loader.Load(context.Background(), c, record)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Account")
}
