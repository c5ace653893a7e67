package storage

import (
	"fmt"
)

// Adapter wraps a live database handle and names the dialect it speaks.
// Adapters are matched on the concrete connection type handed to
// Manager.Start, so callers pass their own *sql.DB or *mongo.Database and
// keep ownership of its lifecycle.
type Adapter interface {
	Dialect() string
}

// Driver owns the schema for one dialect: it migrates it and, through the
// Repos interface, serves the fact, alias and config record sets.
type Driver interface {
	Dialect() string
	Migrate() error
}

type adapterEntry struct {
	match   func(conn any) bool
	factory func(conn any) (Adapter, error)
}

type driverFactory func(adapter Adapter) (Driver, error)

var (
	adapterRegistry []adapterEntry
	driverRegistry  = make(map[string]driverFactory)
)

// RegisterAdapter adds a connection matcher. Registration order is match
// order.
func RegisterAdapter(match func(conn any) bool, factory func(conn any) (Adapter, error)) {
	adapterRegistry = append(adapterRegistry, adapterEntry{match: match, factory: factory})
}

// RegisterDriver binds a dialect name to its driver factory.
func RegisterDriver(dialect string, factory driverFactory) {
	driverRegistry[dialect] = factory
}

// RegistryAdapter resolves the adapter for a raw connection value.
func RegistryAdapter(conn any) (Adapter, error) {
	for _, entry := range adapterRegistry {
		if entry.match(conn) {
			return entry.factory(conn)
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrNoAdapter, conn)
}

// RegistryDriver resolves the driver serving an adapter's dialect.
func RegistryDriver(adapter Adapter) (Driver, error) {
	dialect := adapter.Dialect()
	f, ok := driverRegistry[dialect]
	if !ok {
		return nil, fmt.Errorf("no driver registered for dialect: %s", dialect)
	}
	return f(adapter)
}
