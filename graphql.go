package main

import (
	"context"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/graph"
	"github.com/ravilushqa/otelgqlgen"
)

const apqPrefix = "apq:"

// apqCache keeps persisted queries in the shared Redis. Until Redis is
// connected every lookup misses and clients resend the full query.
type apqCache struct {
	ttl time.Duration
}

func (c apqCache) Add(ctx context.Context, key string, value interface{}) {
	if client := config.GetRedisDB(); client != nil {
		client.Set(ctx, apqPrefix+key, value, c.ttl)
	}
}

func (c apqCache) Get(ctx context.Context, key string) (interface{}, bool) {
	client := config.GetRedisDB()
	if client == nil {
		return struct{}{}, false
	}
	s, err := client.Get(ctx, apqPrefix+key).Result()
	if err != nil {
		return struct{}{}, false
	}
	return s, true
}

// Defining the Graphql handler
func graphqlHandler() gin.HandlerFunc {
	c := graph.Config{Resolvers: &graph.Resolver{
		Tracer: tracer,
	}}

	h := handler.New(graph.NewExecutableSchema(c))
	h.Use(otelgqlgen.Middleware())
	h.AddTransport(transport.POST{})
	h.Use(extension.AutomaticPersistedQuery{Cache: apqCache{ttl: 24 * time.Hour}})
	h.SetErrorPresenter(graph.ErrorPresenter)
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Defining the Playground handler
func playgroundHandler() gin.HandlerFunc {
	h := playground.Handler("Admission billing", "/query")

	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
