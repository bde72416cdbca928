package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/relevance"
	"github.com/54b3r/complaintqa/internal/scope"
	"github.com/54b3r/complaintqa/internal/store"
)

// DefaultStoreDir is used when CQA_STORE_DIR is unset.
const DefaultStoreDir = "./vector_store"

// DefaultTopK is used when RETRIEVAL_TOP_K is unset.
const DefaultTopK = 5

// DefaultQdrantCollection is used when QDRANT_COLLECTION is unset.
const DefaultQdrantCollection = "cfpb-complaints"

// QueryLogDisabled is the CQA_QUERY_LOG value that turns the query log off.
const QueryLogDisabled = "disabled"

// Retrieval holds the resolved retrieval and relevance gate settings.
type Retrieval struct {
	// TopK is the default number of results per query.
	TopK int
	// Policy is the relevance gate.
	Policy relevance.Policy
	// MinLength is the shortest accepted question.
	MinLength int
	// PromptMaxTokens caps the prompt size; zero disables trimming.
	PromptMaxTokens int
}

// RetrievalFromEnv resolves Retrieval from the environment. Unlike the
// provider settings, a value that is set but malformed is an error: a typo
// in RELEVANCE_THRESHOLD would otherwise silently change what counts as
// evidence.
func RetrievalFromEnv() (*Retrieval, error) {
	policy := relevance.DefaultPolicy()
	var err error

	r := &Retrieval{}
	if r.TopK, err = envInt("RETRIEVAL_TOP_K", DefaultTopK); err != nil {
		return nil, err
	}
	if r.TopK < 1 {
		return nil, fmt.Errorf("config: RETRIEVAL_TOP_K must be at least 1, got %d", r.TopK)
	}
	if policy.Threshold, err = envFloat32("RELEVANCE_THRESHOLD", policy.Threshold); err != nil {
		return nil, err
	}
	if policy.CategoryMinMatches, err = envInt("RELEVANCE_CATEGORY_MIN_MATCHES", policy.CategoryMinMatches); err != nil {
		return nil, err
	}
	if policy.ReferenceLimit, err = envInt("RELEVANCE_REFERENCE_LIMIT", policy.ReferenceLimit); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	r.Policy = policy

	if r.MinLength, err = envInt("QUESTION_MIN_LENGTH", scope.DefaultMinLength); err != nil {
		return nil, err
	}
	if r.PromptMaxTokens, err = envInt("PROMPT_MAX_TOKENS", 0); err != nil {
		return nil, err
	}
	return r, nil
}

// StoreDir returns CQA_STORE_DIR or DefaultStoreDir.
func StoreDir() string {
	if v := os.Getenv("CQA_STORE_DIR"); v != "" {
		return v
	}
	return DefaultStoreDir
}

// QdrantFromEnv returns the Qdrant connection settings for vectors of the
// given size, or nil when QDRANT_HOST is unset and search stays on the
// local flat index.
func QdrantFromEnv(vectorSize int) (*rag.QdrantConfig, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		return nil, nil
	}
	port, err := envInt("QDRANT_PORT", 6334)
	if err != nil {
		return nil, err
	}
	collection := os.Getenv("QDRANT_COLLECTION")
	if collection == "" {
		collection = DefaultQdrantCollection
	}
	return &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: uint64(max(vectorSize, 0)),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	}, nil
}

// QueryLogPath resolves CQA_QUERY_LOG. It returns "" when the log is
// disabled, and store.DefaultDBPath() when the variable is unset.
func QueryLogPath() (string, error) {
	switch v := os.Getenv("CQA_QUERY_LOG"); v {
	case QueryLogDisabled:
		return "", nil
	case "":
		return store.DefaultDBPath()
	default:
		return v, nil
	}
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return i, nil
}

func envFloat32(key string, fallback float32) (float32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, v)
	}
	return float32(f), nil
}
