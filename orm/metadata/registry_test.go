package metadata_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Metabor/salesforce-orm/orm/entity"
	"github.com/Metabor/salesforce-orm/orm/metadata"
)

type account struct {
	entity.Entity `sforce:"object=Account"`

	Name *string `sforce:"Name,required"`
	Site *string `sforce:"Site"`
}

type contact struct {
	entity.Entity `sforce:"object=Contact"`

	FirstName *string `sforce:"FirstName,required"`
	LastName  *string `sforce:"LastName"`
	email     *string `sforce:"Email"`
	Age       int     `sforce:"Age__c"`
	Notes     string  // no descriptors, invisible to the mapping
	AccountID *string `sforce:"AccountId"`

	Account *account   `relation:"one,eager,fk=AccountId"`
	Peers   []*contact `relation:"many,name=Peers"`
}

// specialContact inherits contact's declarations, object type included
type specialContact struct {
	contact

	Nickname *string `sforce:"Nickname__c"`
}

type untyped struct {
	entity.Entity

	Name *string `sforce:"Name"`
}

func TestRegistry_Register(t *testing.T) {
	r := metadata.NewRegistry()

	et, err := r.Register(&contact{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if et.ObjectType != "Contact" {
		t.Errorf("ObjectType = %q, want %q", et.ObjectType, "Contact")
	}

	wantOrder := []string{"FirstName", "LastName", "email", "Age", "AccountID", "Account", "Peers"}
	fields := et.Fields()
	if len(fields) != len(wantOrder) {
		t.Fatalf("Fields() returned %d fields, want %d", len(fields), len(wantOrder))
	}
	for i, name := range wantOrder {
		if fields[i].Name != name {
			t.Errorf("Fields()[%d].Name = %q, want %q", i, fields[i].Name, name)
		}
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	type duplicated struct {
		entity.Entity `sforce:"object=Dup"`

		A *string `sforce:"Name"`
		B *string `sforce:"Name"`
	}
	type badRelation struct {
		entity.Entity `sforce:"object=Bad"`

		Child string `relation:"one"`
	}
	type mappedRelation struct {
		entity.Entity `sforce:"object=Bad"`

		Child *account `sforce:"Child" relation:"one"`
	}
	type badObject struct {
		entity.Entity `sforce:"Contact"`
	}

	tests := []struct {
		name      string
		prototype interface{}
		wantErr   error
	}{
		{"missing object descriptor", &untyped{}, metadata.ErrObjectTypeNotFound},
		{"not a struct", 42, metadata.ErrReflectionFailure},
		{"nil prototype", nil, metadata.ErrReflectionFailure},
		{"duplicate external name", &duplicated{}, metadata.ErrDuplicateMapping},
		{"relation on scalar field", &badRelation{}, metadata.ErrInvalidTag},
		{"relation with field mapping", &mappedRelation{}, metadata.ErrInvalidTag},
		{"malformed object descriptor", &badObject{}, metadata.ErrInvalidTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := metadata.NewRegistry().Register(tt.prototype)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_InheritedFields(t *testing.T) {
	r := metadata.NewRegistry()

	et, err := r.Register(&specialContact{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if et.ObjectType != "Contact" {
		t.Errorf("ObjectType = %q, want inherited %q", et.ObjectType, "Contact")
	}

	// Inherited fields come first, in the embedded type's declaration order.
	fields := et.Fields()
	if fields[0].Name != "FirstName" {
		t.Errorf("first field = %q, want inherited FirstName", fields[0].Name)
	}
	last := fields[len(fields)-1]
	if last.Name != "Nickname" {
		t.Errorf("last field = %q, want Nickname", last.Name)
	}

	sc := &specialContact{}
	f, err := et.FieldByName("FirstName")
	if err != nil {
		t.Fatalf("FieldByName() error = %v", err)
	}
	if err := f.Set(sc, "Ann"); err != nil {
		t.Fatalf("Set() on inherited field error = %v", err)
	}
	if sc.FirstName == nil || *sc.FirstName != "Ann" {
		t.Errorf("inherited field not written, got %v", sc.FirstName)
	}
}

func TestRegistry_FieldByName(t *testing.T) {
	et, err := metadata.NewRegistry().Register(&contact{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := et.FieldByName("FirstName"); err != nil {
		t.Errorf("FieldByName(FirstName) error = %v", err)
	}

	_, err = et.FieldByName("Bogus")
	if !errors.Is(err, metadata.ErrFieldNotFound) {
		t.Errorf("FieldByName(Bogus) error = %v, want metadata.ErrFieldNotFound", err)
	}
}

func TestRegistry_ResolveCaches(t *testing.T) {
	r := metadata.NewRegistry()

	first, err := r.Resolve(&contact{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve(reflect.TypeOf(contact{}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first != second {
		t.Error("Resolve() did not return the cached entity type")
	}
}

func TestField_Descriptors(t *testing.T) {
	et, err := metadata.NewRegistry().Register(&contact{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	first, _ := et.FieldByName("FirstName")
	if !first.Mapped() || first.External != "FirstName" {
		t.Errorf("FirstName mapping = %q, want FirstName", first.External)
	}
	if !first.Required {
		t.Error("FirstName should be required")
	}

	if _, err := et.FieldByName("Notes"); !errors.Is(err, metadata.ErrFieldNotFound) {
		t.Errorf("undeclared field resolved: %v", err)
	}

	acc, _ := et.FieldByName("Account")
	if acc.Relation == nil {
		t.Fatal("Account relation descriptor missing")
	}
	if acc.Relation.Kind != metadata.RelationOne || acc.Relation.Lazy {
		t.Errorf("Account relation = %s lazy=%v, want one eager", acc.Relation.Kind, acc.Relation.Lazy)
	}
	if acc.Relation.ForeignKey != "AccountId" {
		t.Errorf("Account relation fk = %q", acc.Relation.ForeignKey)
	}
	if acc.Relation.Target != reflect.TypeOf(account{}) {
		t.Errorf("Account relation target = %v", acc.Relation.Target)
	}

	peers, _ := et.FieldByName("Peers")
	if peers.Relation == nil || peers.Relation.Kind != metadata.RelationMany || !peers.Relation.Lazy {
		t.Errorf("Peers relation = %+v, want lazy many", peers.Relation)
	}
}

func TestField_GetSet(t *testing.T) {
	et, err := metadata.NewRegistry().Register(&contact{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c := &contact{}

	tests := []struct {
		name  string
		field string
		value interface{}
		check func(t *testing.T)
	}{
		{
			name: "string into pointer field", field: "FirstName", value: "Ann",
			check: func(t *testing.T) {
				if c.FirstName == nil || *c.FirstName != "Ann" {
					t.Errorf("FirstName = %v", c.FirstName)
				}
			},
		},
		{
			name: "unexported field", field: "email", value: "ann@example.com",
			check: func(t *testing.T) {
				if c.email == nil || *c.email != "ann@example.com" {
					t.Errorf("email = %v", c.email)
				}
			},
		},
		{
			name: "json number into int field", field: "Age", value: float64(41),
			check: func(t *testing.T) {
				if c.Age != 41 {
					t.Errorf("Age = %d", c.Age)
				}
			},
		},
		{
			name: "nil clears pointer field", field: "FirstName", value: nil,
			check: func(t *testing.T) {
				if c.FirstName != nil {
					t.Errorf("FirstName = %v, want nil", c.FirstName)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := et.FieldByName(tt.field)
			if err != nil {
				t.Fatalf("FieldByName() error = %v", err)
			}
			if err := f.Set(c, tt.value); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			tt.check(t)

			got, err := f.Get(c)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			_ = got
		})
	}
}

func TestField_SetRejectsImpossibleValues(t *testing.T) {
	et, err := metadata.NewRegistry().Register(&contact{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c := &contact{}

	age, _ := et.FieldByName("Age")
	if err := age.Set(c, "not a number"); err == nil {
		t.Error("Set(string into int) should fail")
	}

	first, _ := et.FieldByName("FirstName")
	if err := first.Set(c, 12); err == nil {
		t.Error("Set(int into string) should fail, rune conversions are never intended")
	}
}

func TestField_Unset(t *testing.T) {
	et, err := metadata.NewRegistry().Register(&contact{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c := &contact{}

	first, _ := et.FieldByName("FirstName")
	unset, err := first.Unset(c)
	if err != nil || !unset {
		t.Errorf("Unset() = %v, %v; want true on nil pointer", unset, err)
	}

	name := "Ann"
	c.FirstName = &name
	unset, _ = first.Unset(c)
	if unset {
		t.Error("Unset() = true after value was assigned")
	}

	// Non-nilable kinds carry no absence sentinel.
	age, _ := et.FieldByName("Age")
	unset, _ = age.Unset(c)
	if unset {
		t.Error("Unset() = true for zero int field")
	}
}

func TestEntityType_ExternalNames(t *testing.T) {
	et, err := metadata.NewRegistry().Register(&account{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	want := []string{"Name", "Site"}
	got := et.ExternalNames()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExternalNames() = %v, want %v", got, want)
	}
}

func TestEntityType_New(t *testing.T) {
	et, err := metadata.NewRegistry().Register(&account{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, ok := et.New().(*account); !ok {
		t.Errorf("New() = %T, want *account", et.New())
	}
}
