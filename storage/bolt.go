package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/bromato/bromato/models"
	bolt "go.etcd.io/bbolt"
)

var (
	sessionsBucket     = []byte("sessions")
	interceptorsBucket = []byte("interceptors")
	// responsesBucket 下每个拦截器一个子 bucket，key 为递增序号
	responsesBucket = []byte("interceptor_responses")
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

type BoltDB struct {
	db *bolt.DB
}

func NewBoltDB(dbPath string) (*BoltDB, error) {
	dir := filepath.Dir(dbPath)

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w (directory: %s)", dbPath, err, dir)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sessionsBucket, interceptorsBucket, responsesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// SaveSession 保存会话记录
func (b *BoltDB) SaveSession(record *models.SessionRecord) error {
	record.UpdatedAt = time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(sessionsBucket).Put([]byte(record.ID), data)
	})
}

// GetSession 获取会话记录
func (b *BoltDB) GetSession(id string) (*models.SessionRecord, error) {
	var record models.SessionRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListSessions 按创建时间倒序列出会话
func (b *BoltDB) ListSessions() ([]*models.SessionRecord, error) {
	var records []*models.SessionRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var record models.SessionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteSession 删除会话及其全部拦截器和响应
func (b *BoltDB) DeleteSession(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(sessionsBucket).Delete([]byte(id)); err != nil {
			return err
		}
		ids, err := interceptorIDs(tx, id)
		if err != nil {
			return err
		}
		for _, iid := range ids {
			if err := deleteInterceptor(tx, iid); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetSessions 清空所有会话相关数据。页面不会跨进程存活，启动时调用。
func (b *BoltDB) ResetSessions() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sessionsBucket, interceptorsBucket, responsesBucket} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveInterceptor 保存拦截器记录
func (b *BoltDB) SaveInterceptor(record *models.InterceptorRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := tx.Bucket(interceptorsBucket).Put([]byte(record.ID), data); err != nil {
			return err
		}
		_, err = tx.Bucket(responsesBucket).CreateBucketIfNotExists([]byte(record.ID))
		return err
	})
}

// GetInterceptor 获取拦截器记录
func (b *BoltDB) GetInterceptor(id string) (*models.InterceptorRecord, error) {
	var record models.InterceptorRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(interceptorsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("interceptor %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListInterceptors 列出某个会话的拦截器
func (b *BoltDB) ListInterceptors(sessionID string) ([]*models.InterceptorRecord, error) {
	var records []*models.InterceptorRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(interceptorsBucket).ForEach(func(k, v []byte) error {
			var record models.InterceptorRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.SessionID == sessionID {
				records = append(records, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteInterceptor 删除拦截器及其响应
func (b *BoltDB) DeleteInterceptor(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return deleteInterceptor(tx, id)
	})
}

// AppendInterceptorResponse 追加一条拦截到的响应
func (b *BoltDB) AppendInterceptorResponse(interceptorID string, entry models.ResponseEntry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(interceptorsBucket).Get([]byte(interceptorID)) == nil {
			return fmt.Errorf("interceptor %s: %w", interceptorID, ErrNotFound)
		}
		bucket, err := tx.Bucket(responsesBucket).CreateBucketIfNotExists([]byte(interceptorID))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), data)
	})
}

// ListInterceptorResponses 按拦截顺序返回响应
func (b *BoltDB) ListInterceptorResponses(interceptorID string) ([]models.ResponseEntry, error) {
	entries := []models.ResponseEntry{}
	err := b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(interceptorsBucket).Get([]byte(interceptorID)) == nil {
			return fmt.Errorf("interceptor %s: %w", interceptorID, ErrNotFound)
		}
		bucket := tx.Bucket(responsesBucket).Bucket([]byte(interceptorID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry models.ResponseEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func interceptorIDs(tx *bolt.Tx, sessionID string) ([]string, error) {
	var ids []string
	err := tx.Bucket(interceptorsBucket).ForEach(func(k, v []byte) error {
		var record models.InterceptorRecord
		if err := json.Unmarshal(v, &record); err != nil {
			return err
		}
		if record.SessionID == sessionID {
			ids = append(ids, string(k))
		}
		return nil
	})
	return ids, err
}

func deleteInterceptor(tx *bolt.Tx, id string) error {
	if err := tx.Bucket(interceptorsBucket).Delete([]byte(id)); err != nil {
		return err
	}
	err := tx.Bucket(responsesBucket).DeleteBucket([]byte(id))
	if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return err
	}
	return nil
}

// sequenceKey 大端编码保证 ForEach 按插入顺序遍历
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
