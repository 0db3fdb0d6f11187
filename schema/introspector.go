package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tobilg/caddyserver-shop-module/database"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxPathDepth is the number of relations a column path may traverse.
const MaxPathDepth = 2

// ErrUnknownEntity is returned for entities without a definition.
var ErrUnknownEntity = errors.New("unknown entity")

// ColumnSource reads column metadata from the store.
type ColumnSource interface {
	TableColumns(ctx context.Context, table string) ([]database.ColumnInfo, error)
}

// PathError reports a column path that does not resolve.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Hop is one relation traversed by a path.
type Hop struct {
	// From is the entity the relation is declared on.
	From     string
	Relation Relation
	// Table is the table of the relation target.
	Table string
}

// ResolvedPath is a column path resolved against an entity.
type ResolvedPath struct {
	Path   string
	Hops   []Hop
	Column Column
	// Owner is the entity holding Column.
	Owner *Entity
}

// ToMany reports whether any hop reaches many rows.
func (p *ResolvedPath) ToMany() bool {
	for _, h := range p.Hops {
		if h.Relation.Cardinality == ToMany {
			return true
		}
	}
	return false
}

// Introspector combines entity definitions with columns read from the
// store. Described entities are cached for the lifetime of the process.
type Introspector struct {
	defs     map[string]Definition
	names    []string
	source   ColumnSource
	entities sync.Map // map[string]*Entity
	logger   *zap.Logger
}

// NewIntrospector creates an introspector over the given definitions.
func NewIntrospector(source ColumnSource, logger *zap.Logger, defs ...Definition) *Introspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Introspector{
		defs:   make(map[string]Definition, len(defs)),
		source: source,
		logger: logger,
	}
	for _, d := range defs {
		i.defs[d.Name] = d
		i.names = append(i.names, d.Name)
	}
	return i
}

// Entities returns the defined entity names in definition order.
func (i *Introspector) Entities() []string {
	return append([]string(nil), i.names...)
}

// Describe returns the entity, reading its columns on first use.
func (i *Introspector) Describe(ctx context.Context, name string) (*Entity, error) {
	if cached, ok := i.entities.Load(name); ok {
		return cached.(*Entity), nil
	}

	def, ok := i.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}

	infos, err := i.source.TableColumns(ctx, def.table())
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", name, err)
	}

	entity := &Entity{
		Name:       def.Name,
		Table:      def.table(),
		PrimaryKey: def.primaryKey(),
		Columns:    make([]Column, 0, len(infos)),
		Relations:  make(map[string]Relation, len(def.Relations)),
		index:      make(map[string]int, len(infos)),
	}
	for _, info := range infos {
		kind, ok := def.Kinds[info.Name]
		if !ok {
			kind = KindFromType(info.DataType)
		}
		entity.index[info.Name] = len(entity.Columns)
		entity.Columns = append(entity.Columns, Column{
			Name:     info.Name,
			Kind:     kind,
			Nullable: info.Nullable,
			Primary:  info.Name == entity.PrimaryKey,
		})
	}
	if _, ok := entity.index[entity.PrimaryKey]; !ok {
		return nil, fmt.Errorf("table %s has no primary key column %s", entity.Table, entity.PrimaryKey)
	}
	for _, r := range def.Relations {
		entity.Relations[r.Name] = r
	}

	actual, loaded := i.entities.LoadOrStore(name, entity)
	if !loaded {
		i.logger.Debug("Described entity",
			zap.String("entity", name),
			zap.String("table", entity.Table),
			zap.Int("columns", len(entity.Columns)),
		)
	}
	return actual.(*Entity), nil
}

// Columns returns the columns of an entity in ordinal order.
func (i *Introspector) Columns(ctx context.Context, name string) ([]Column, error) {
	e, err := i.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.Columns, nil
}

// Relation returns a declared relation. It never touches the store.
func (i *Introspector) Relation(entity, name string) (Relation, bool) {
	def, ok := i.defs[entity]
	if !ok {
		return Relation{}, false
	}
	for _, r := range def.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// ResolvePath resolves "column", "rel.column" or "rel.rel.column" against
// an entity. Unresolvable paths yield a *PathError.
func (i *Introspector) ResolvePath(ctx context.Context, entity, path string) (*ResolvedPath, error) {
	parts := strings.Split(path, ".")
	if len(parts)-1 > MaxPathDepth {
		return nil, &PathError{Path: path, Reason: "path too deep"}
	}
	for _, p := range parts {
		if p == "" {
			return nil, &PathError{Path: path, Reason: "unknown column"}
		}
	}

	current, err := i.Describe(ctx, entity)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedPath{Path: path}
	for _, name := range parts[:len(parts)-1] {
		rel, ok := current.Relation(name)
		if !ok {
			return nil, &PathError{Path: path, Reason: "unknown relation"}
		}
		from := current.Name
		if current, err = i.Describe(ctx, rel.Target); err != nil {
			return nil, err
		}
		resolved.Hops = append(resolved.Hops, Hop{From: from, Relation: rel, Table: current.Table})
	}

	col, ok := current.Column(parts[len(parts)-1])
	if !ok {
		return nil, &PathError{Path: path, Reason: "unknown column"}
	}
	resolved.Column = col
	resolved.Owner = current
	return resolved, nil
}

// Warm describes every defined entity concurrently, so later path
// resolution is served from the cache.
func (i *Introspector) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range i.names {
		name := name
		g.Go(func() error {
			_, err := i.Describe(gctx, name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Relations must point at defined entities.
	for _, name := range i.names {
		for _, r := range i.defs[name].Relations {
			if _, ok := i.defs[r.Target]; !ok {
				return fmt.Errorf("relation %s.%s: %w: %s", name, r.Name, ErrUnknownEntity, r.Target)
			}
		}
	}

	i.logger.Info("Schema warmed", zap.Int("entities", len(i.names)))
	return nil
}
