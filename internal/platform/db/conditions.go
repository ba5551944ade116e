package db

import (
	"strconv"
	"strings"
)

// Conditions accumulates WHERE clauses and their positional arguments.
type Conditions struct {
	clauses []string
	args    []any
}

// Add appends clause bound to arg. Every "$?" in clause refers to arg, so a
// search term can be matched against several columns with one parameter.
func (c *Conditions) Add(clause string, arg any) {
	placeholder := c.Next(arg)
	c.clauses = append(c.clauses, strings.ReplaceAll(clause, "$?", placeholder))
}

// AddRaw appends a clause without arguments.
func (c *Conditions) AddRaw(clause string) {
	c.clauses = append(c.clauses, clause)
}

// Next registers arg and returns its placeholder, for LIMIT/OFFSET and friends.
func (c *Conditions) Next(arg any) string {
	c.args = append(c.args, arg)
	return "$" + strconv.Itoa(len(c.args))
}

// Where renders the accumulated clauses joined with AND, or "" when empty.
func (c *Conditions) Where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// Args returns the positional arguments in placeholder order.
func (c *Conditions) Args() []any {
	return c.args
}
