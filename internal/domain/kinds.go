package domain

// TodoKind is the private to-do list: every item belongs to the identity that
// created it.
func TodoKind() Kind {
	return Kind{
		Name:       "todos",
		IDStrategy: IDOpaque,
		Visibility: VisibilityOwner,
		Fields: []Field{
			{Name: "title", Type: FieldString, Required: true, Rules: "min=1,max=100"},
			{Name: "description", Type: FieldString, Rules: "max=500"},
			{Name: "completed", Type: FieldBool, Default: false},
			{Name: "priority", Type: FieldString, Rules: "oneof=low medium high", Default: "medium"},
			{Name: "dueDate", Type: FieldTime},
		},
		SearchField: "title",
	}
}

// PeopleKind is the public address book with numeric ids.
func PeopleKind() Kind {
	return Kind{
		Name:       "people",
		IDStrategy: IDNumeric,
		Visibility: VisibilityPublic,
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true, Rules: "min=1,max=200"},
			{Name: "email", Type: FieldString, Required: true, Rules: "email"},
			{Name: "age", Type: FieldNumber, Rules: "min=0,max=150"},
		},
		SearchField: "name",
		RangeField:  "age",
		Seed: []Record{
			{FieldID: seedNumber(1), FieldVersion: seedNumber(1), "name": "Ada Lovelace", "email": "ada@example.com", "age": seedNumber(28)},
			{FieldID: seedNumber(2), FieldVersion: seedNumber(1), "name": "Alan Turing", "email": "alan@example.com", "age": seedNumber(32)},
			{FieldID: seedNumber(3), FieldVersion: seedNumber(1), "name": "Grace Hopper", "email": "grace@example.com", "age": seedNumber(25)},
		},
	}
}

// DefaultKinds returns the kinds served out of the box.
func DefaultKinds() []Kind {
	return []Kind{TodoKind(), PeopleKind()}
}
