package svc

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "dataengine/internal/cache"
	"dataengine/internal/config"
	"dataengine/internal/model"
	"dataengine/internal/resolver"
	"dataengine/internal/router"
	"dataengine/internal/store"
	enginesync "dataengine/internal/sync"
	"dataengine/pkg/datasource"
	_ "dataengine/pkg/datasource/providers/ashare"
	_ "dataengine/pkg/datasource/providers/crypto"
	_ "dataengine/pkg/datasource/providers/fx"
)

// ServiceContext wires one store, engine, and resolver per configured asset
// class, plus the unified router over all of them.
type ServiceContext struct {
	Config config.Config

	DBConn     sqlx.SqlConn
	QuoteCache gocache.Cache

	Sources   map[datasource.AssetClass]datasource.DataSource
	Stores    map[datasource.AssetClass]*store.Store
	Engines   map[datasource.AssetClass]*enginesync.Engine
	Resolvers map[datasource.AssetClass]*resolver.Resolver
	Router    *router.Router
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config:    c,
		Sources:   map[datasource.AssetClass]datasource.DataSource{},
		Stores:    map[datasource.AssetClass]*store.Store{},
		Engines:   map[datasource.AssetClass]*enginesync.Engine{},
		Resolvers: map[datasource.AssetClass]*resolver.Resolver{},
	}

	sourcesCfg := c.Sources.Value
	if sourcesCfg == nil {
		var err error
		sourcesCfg, err = config.LoadSources()
		if err != nil {
			log.Fatalf("failed to load sources config: %v", err)
		}
	}

	built, err := sourcesCfg.BuildSources()
	if err != nil {
		log.Fatalf("failed to build data sources: %v", err)
	}
	svc.Sources = sourcesCfg.ByClass(built)

	if c.Postgres.DSN == "" {
		log.Fatalf("postgres.dsn is required")
	}
	svc.DBConn = sqlx.NewSqlConn("pgx", c.Postgres.DSN)

	if c.Redis.Host != "" {
		rds := redis.MustNewRedis(c.Redis)
		svc.QuoteCache = gocache.NewNode(rds, syncx.NewSingleFlight(), gocache.NewStat(cachekeys.Namespace), model.ErrNotFound)
	}

	ttl := cachekeys.NewTTLSet(c.TTL.Short, c.TTL.Medium, c.TTL.Long)
	engineOpts := []enginesync.Option{
		enginesync.WithDirectoryMaxAge(c.DirectoryMaxAge()),
		enginesync.WithInactiveAfter(c.InactiveAfter()),
	}
	if epoch := c.EpochTime(); !epoch.IsZero() {
		engineOpts = append(engineOpts, enginesync.WithEpoch(epoch))
	}

	routes := map[datasource.AssetClass]*router.Route{}
	for class, src := range svc.Sources {
		st, err := store.New(store.Config{
			Class: class,
			Conn:  svc.DBConn,
			Cache: svc.QuoteCache,
			TTL:   ttl,
		})
		if err != nil {
			log.Fatalf("failed to build %s store: %v", class, err)
		}
		eng := enginesync.New(src, st, engineOpts...)
		res := resolver.New(class, st)

		svc.Stores[class] = st
		svc.Engines[class] = eng
		svc.Resolvers[class] = res
		routes[class] = &router.Route{
			Source:   src,
			Engine:   eng,
			Store:    st,
			Resolver: res,
		}
	}

	svc.Router, err = router.New(c.RoutingTable(), routes)
	if err != nil {
		log.Fatalf("failed to build router: %v", err)
	}
	return svc
}
