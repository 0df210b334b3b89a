package mongo

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// money stores a decimal as Decimal128. Older documents may hold amounts as
// doubles, integers or strings; all of them decode.
type money struct {
	decimal.Decimal
}

func (m money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d, err := primitive.ParseDecimal128(m.String())
	if err != nil {
		return 0, nil, errors.Wrapf(err, "encode amount %s", m.String())
	}
	return bson.MarshalValue(d)
}

func (m *money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeDecimal128:
		d, err := decimal.NewFromString(raw.Decimal128().String())
		if err != nil {
			return errors.Wrap(err, "decode decimal128")
		}
		m.Decimal = d
	case bson.TypeDouble:
		m.Decimal = decimal.NewFromFloat(raw.Double())
	case bson.TypeInt32, bson.TypeInt64:
		m.Decimal = decimal.NewFromInt(raw.AsInt64())
	case bson.TypeString:
		d, err := decimal.NewFromString(raw.StringValue())
		if err != nil {
			return errors.Wrap(err, "decode amount string")
		}
		m.Decimal = d
	case bson.TypeNull, bson.TypeUndefined:
		m.Decimal = decimal.Zero
	default:
		return errors.Errorf("cannot decode amount from bson %s", t)
	}
	return nil
}
