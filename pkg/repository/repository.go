package repository

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the generic record store shared by every record kind.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	FindOne(ctx context.Context, predicate Predicate, opts ...option.QueryOption) (*T, error)
	FindAll(ctx context.Context, predicate Predicate, opts ...option.QueryOption) ([]*T, error)
	Count(ctx context.Context, predicate Predicate) (int64, error)
	Create(ctx context.Context, resource *T) error
	Save(ctx context.Context, resource *T) error
	Delete(ctx context.Context, id snowflake.ID) (bool, error)
}

// Combinator joins the fields of a predicate.
type Combinator string

const (
	And Combinator = "AND"
	Or  Combinator = "OR"
)

// Predicate is a set of field equality checks joined by And or Or.
type Predicate struct {
	Fields map[string]any
	Join   Combinator
}

// Where builds a predicate that matches when every field matches.
func Where(fields map[string]any) Predicate {
	return Predicate{Fields: fields, Join: And}
}

// AnyOf builds a predicate that matches when at least one field matches.
func AnyOf(fields map[string]any) Predicate {
	return Predicate{Fields: fields, Join: Or}
}

// IsEmpty reports whether the predicate would match every row.
func (p Predicate) IsEmpty() bool {
	return len(p.Fields) == 0
}

func (p Predicate) expression() clause.Expression {
	keys := make([]string, 0, len(p.Fields))
	for key := range p.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	exprs := make([]clause.Expression, 0, len(keys))
	for _, key := range keys {
		exprs = append(exprs, clause.Eq{Column: clause.Column{Name: key}, Value: p.Fields[key]})
	}
	if p.Join == Or {
		return clause.Or(exprs...)
	}
	return clause.And(exprs...)
}
