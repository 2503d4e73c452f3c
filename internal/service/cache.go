// cache.go — последняя известная копия каталога в памяти.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filmrental/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fr_catalog_cache_hits_total",
		Help: "Общее количество обращений к последней известной копии каталога с результатом.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fr_catalog_cache_misses_total",
		Help: "Общее количество промахов кэша каталога.",
	})
)

// catalogKey — единственный ключ кэша: хранится один каталог целиком.
const catalogKey = "catalog"

// CatalogCache — последняя успешно полученная копия каталога с TTL.
// Каждый процесс имеет собственную копию.
type CatalogCache struct {
	cache *expirable.LRU[string, []model.Film]
}

// NewCatalogCache создаёт кэш каталога. ttl — время жизни копии после записи.
func NewCatalogCache(ttl time.Duration) *CatalogCache {
	return &CatalogCache{cache: expirable.NewLRU[string, []model.Film](1, nil, ttl)}
}

// Get возвращает копию каталога. Пустой каталог считается промахом.
func (c *CatalogCache) Get() ([]model.Film, bool) {
	films, ok := c.cache.Get(catalogKey)
	if ok && len(films) > 0 {
		cacheHitsTotal.Inc()
		return cloneFilms(films), true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set запоминает каталог. Пустой список не заменяет существующую копию.
func (c *CatalogCache) Set(films []model.Film) {
	if len(films) == 0 {
		return
	}
	c.cache.Add(catalogKey, cloneFilms(films))
}

// Invalidate удаляет копию каталога.
func (c *CatalogCache) Invalidate() {
	c.cache.Remove(catalogKey)
}

func cloneFilms(films []model.Film) []model.Film {
	out := make([]model.Film, len(films))
	copy(out, films)
	return out
}
