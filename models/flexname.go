package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// FlexibleName is a display name that older records stored as a plain string,
// a list of {"name": ...} objects, or a single {"name": ...} object. Decoding
// always collapses it to a plain string.
type FlexibleName string

// String returns the name
func (n FlexibleName) String() string {
	return string(n)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (n *FlexibleName) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	name, err := nameFromRaw(bson.RawValue{Type: t, Value: data})
	if err != nil {
		return err
	}
	*n = FlexibleName(name)
	return nil
}

func nameFromRaw(rv bson.RawValue) (string, error) {
	switch rv.Type {
	case bson.TypeString:
		return rv.StringValue(), nil
	case bson.TypeNull, bson.TypeUndefined:
		return "", nil
	case bson.TypeEmbeddedDocument:
		v, err := rv.Document().LookupErr("name")
		if err != nil {
			return "", nil
		}
		return nameFromRaw(v)
	case bson.TypeArray:
		values, err := rv.Array().Values()
		if err != nil {
			return "", err
		}
		for _, v := range values {
			name, err := nameFromRaw(v)
			if err != nil {
				return "", err
			}
			if name != "" {
				return name, nil
			}
		}
		return "", nil
	}
	return "", fmt.Errorf("unsupported bson type %v for name", rv.Type)
}

// UnmarshalJSON accepts the same shapes as UnmarshalBSONValue
func (n *FlexibleName) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*n = FlexibleName(nameFromInterface(raw))
	return nil
}

func nameFromInterface(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]interface{}:
		return nameFromInterface(x["name"])
	case []interface{}:
		for _, item := range x {
			if name := nameFromInterface(item); name != "" {
				return name
			}
		}
	}
	return ""
}

// UnmarshalDynamoDBAttributeValue implements attributevalue.Unmarshaler
func (n *FlexibleName) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	*n = FlexibleName(nameFromAttribute(av))
	return nil
}

func nameFromAttribute(av types.AttributeValue) string {
	switch x := av.(type) {
	case *types.AttributeValueMemberS:
		return x.Value
	case *types.AttributeValueMemberM:
		if v, ok := x.Value["name"]; ok {
			return nameFromAttribute(v)
		}
	case *types.AttributeValueMemberL:
		for _, item := range x.Value {
			if name := nameFromAttribute(item); name != "" {
				return name
			}
		}
	}
	return ""
}

// corruptedNames are placeholder strings left behind by clients that
// serialized an object where a string was expected
var corruptedNames = map[string]bool{
	"[object Object]": true,
	"undefined":       true,
	"null":            true,
}

// IsUsableDisplayValue reports whether a denormalized display field holds a
// real value
func IsUsableDisplayValue(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !corruptedNames[s]
}
