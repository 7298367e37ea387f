// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"careerkit-go/internal/config"
	"careerkit-go/internal/model"
	"careerkit-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "long" },
			"tool": { "type": "keyword" },
			"input": { "type": "text" },
			"output": { "type": "text" },
			"createdAt": { "type": "date" }
		}
	}
}`

// Index 封装了一个保存已保存回答的 Elasticsearch 索引。
type Index struct {
	client *elasticsearch.Client
	name   string
}

// New 初始化 Elasticsearch 客户端并确保索引存在。
func New(ctx context.Context, esCfg config.ElasticsearchConfig) (*Index, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &Index{client: client, name: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (i *Index) createIndexIfNotExists(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.name}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.name)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = i.client.Indices.Create(
		i.name,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.name, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.name, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", i.name)
	return nil
}

// Upsert 写入（或覆盖）一条已保存回答。
func (i *Index) Upsert(ctx context.Context, r model.SavedResponse) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      i.name,
		DocumentID: strconv.FormatInt(r.ID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index saved response %d: %s", r.ID, res.String())
	}
	return nil
}

// Remove 删除一条文档；文档不存在不视为错误。
func (i *Index) Remove(ctx context.Context, id int64) error {
	req := esapi.DeleteRequest{
		Index:      i.name,
		DocumentID: strconv.FormatInt(id, 10),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete saved response %d: %s", id, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				ID int64 `json:"id"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 在 input/output/tool 上做全文检索，按相关度返回记录 ID。
func (i *Index) Search(ctx context.Context, query string, size int) ([]int64, error) {
	var buf bytes.Buffer
	q := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"input", "output", "tool"},
			},
		},
		"_source": []string{"id"},
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, err
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(&buf),
		i.client.Search.WithSize(size),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	ids := make([]int64, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		ids = append(ids, h.Source.ID)
	}
	return ids, nil
}
