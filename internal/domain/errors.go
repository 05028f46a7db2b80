package domain

import "errors"

var (
	// ErrProductNotFound is returned when a catalog product cannot be found
	ErrProductNotFound = errors.New("product not found in catalog")

	// ErrMappingNotFound is returned when no mapping exists for a raw name
	ErrMappingNotFound = errors.New("raw name mapping not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrLLMFailure is returned when the language model call fails
	ErrLLMFailure = errors.New("LLM request failed")

	// ErrMalformedLLMResponse is returned when the model output cannot be decoded or violates its schema
	ErrMalformedLLMResponse = errors.New("malformed LLM response")

	// ErrStoreFailure is returned when the catalog or mapping store is unavailable
	ErrStoreFailure = errors.New("store request failed")

	// ErrDuplicateMapping is returned when a mapping insert collides with an existing row
	ErrDuplicateMapping = errors.New("mapping already exists")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)
