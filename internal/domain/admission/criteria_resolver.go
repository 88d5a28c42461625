package admission

import (
	"context"
	"sync/atomic"
)

// CriteriaResolver выводит критерии через кеш по отпечатку атрибутов.
// Ошибки кеша не мешают выводу: критерии всегда можно вычислить заново.
// Сбои кеша считаются и доступны через CacheFailures.
type CriteriaResolver struct {
	cache    CriteriaCache
	failures atomic.Int64
}

// NewCriteriaResolver создаёт резолвер. nil-кеш допустим.
func NewCriteriaResolver(cache CriteriaCache) *CriteriaResolver {
	return &CriteriaResolver{cache: cache}
}

// Resolve возвращает критерии для атрибутов. Второе значение сообщает,
// взяты ли критерии из кеша.
func (r *CriteriaResolver) Resolve(ctx context.Context, attrs CatalogAttributes) (Criteria, bool) {
	if r == nil || r.cache == nil {
		return ResolveCriteria(attrs), false
	}
	fp := attrs.Fingerprint()
	cached, err := r.cache.GetCriteria(ctx, fp)
	if err != nil {
		r.failures.Add(1)
	} else if cached != nil {
		return *cached, true
	}
	c := ResolveCriteria(attrs)
	if err := r.cache.SetCriteria(ctx, fp, c); err != nil {
		r.failures.Add(1)
	}
	return c, false
}

// CacheFailures - число неудачных чтений и записей кеша с момента создания.
func (r *CriteriaResolver) CacheFailures() int64 {
	if r == nil {
		return 0
	}
	return r.failures.Load()
}
