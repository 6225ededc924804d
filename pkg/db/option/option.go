package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption decorates a gorm query.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			if c.Operator == IN {
				db = db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
				continue
			}
			db = db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		}
		return db
	}
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
}

// WithSortBy orders by SortBy (created_at when empty). OrderBy is ASC or DESC.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		col := s.SortBy
		if col == "" {
			col = "created_at"
		}
		desc := strings.EqualFold(s.OrderBy, "DESC")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

// WithLockingUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
func WithLockingUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}
