package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认检查点数据库路径
	DefaultCheckpointPath = "./data/scanner.db"

	// 存储桶名称
	CheckpointBucket = "checkpoint"

	// 检查点键
	LastScannedBlockKey = "last_scanned_block"
	ScanCyclesKey       = "scan_cycles"
	ApplicationsKey     = "applications_found"
	LastScanTimeKey     = "last_scan_time"
)

// CheckpointInfo 扫描检查点信息
type CheckpointInfo struct {
	LastScannedBlock  uint64    `json:"last_scanned_block"`
	ScanCycles        uint64    `json:"scan_cycles"`
	ApplicationsFound uint64    `json:"applications_found"`
	LastScanTime      time.Time `json:"last_scan_time"`
}

// Checkpoint 扫描检查点管理器
type Checkpoint struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex

	// 内存缓存
	cache *CheckpointInfo
}

// NewCheckpoint 创建检查点管理器
func NewCheckpoint(dbPath string, logger *logrus.Logger) (*Checkpoint, error) {
	if dbPath == "" {
		dbPath = DefaultCheckpointPath
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开检查点数据库失败: %w", err)
	}

	cp := &Checkpoint{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		cache:  &CheckpointInfo{},
	}

	if err := cp.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化检查点数据库失败: %w", err)
	}

	if err := cp.loadCache(); err != nil {
		logger.Warnf("加载检查点缓存失败: %v", err)
	}

	logger.Infof("扫描检查点已初始化，数据库路径: %s", dbPath)
	return cp, nil
}

// initDB 初始化数据库结构
func (cp *Checkpoint) initDB() error {
	return cp.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(CheckpointBucket))
		if err != nil {
			return fmt.Errorf("创建检查点存储桶失败: %w", err)
		}
		return nil
	})
}

// loadCache 加载缓存
func (cp *Checkpoint) loadCache() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	return cp.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(CheckpointBucket))
		if bucket == nil {
			return nil
		}

		if data := bucket.Get([]byte(LastScannedBlockKey)); data != nil {
			cp.cache.LastScannedBlock = binary.BigEndian.Uint64(data)
		}
		if data := bucket.Get([]byte(ScanCyclesKey)); data != nil {
			cp.cache.ScanCycles = binary.BigEndian.Uint64(data)
		}
		if data := bucket.Get([]byte(ApplicationsKey)); data != nil {
			cp.cache.ApplicationsFound = binary.BigEndian.Uint64(data)
		}
		if data := bucket.Get([]byte(LastScanTimeKey)); data != nil {
			if t, err := time.Parse(time.RFC3339, string(data)); err == nil {
				cp.cache.LastScanTime = t
			}
		}

		return nil
	})
}

// LastScannedBlock 获取最后扫描的区块号
func (cp *Checkpoint) LastScannedBlock() uint64 {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.cache.LastScannedBlock
}

// RecordCycle 记录一次扫描周期
func (cp *Checkpoint) RecordCycle(lastBlock uint64, applicationsFound int) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	now := time.Now()

	if lastBlock > cp.cache.LastScannedBlock {
		cp.cache.LastScannedBlock = lastBlock
	}
	cp.cache.ScanCycles++
	cp.cache.ApplicationsFound += uint64(applicationsFound)
	cp.cache.LastScanTime = now

	return cp.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(CheckpointBucket))
		if bucket == nil {
			return fmt.Errorf("检查点存储桶不存在")
		}

		if err := putUint64(bucket, LastScannedBlockKey, cp.cache.LastScannedBlock); err != nil {
			return err
		}
		if err := putUint64(bucket, ScanCyclesKey, cp.cache.ScanCycles); err != nil {
			return err
		}
		if err := putUint64(bucket, ApplicationsKey, cp.cache.ApplicationsFound); err != nil {
			return err
		}
		return bucket.Put([]byte(LastScanTimeKey), []byte(now.Format(time.RFC3339)))
	})
}

// putUint64 写入uint64键值
func putUint64(bucket *bolt.Bucket, key string, value uint64) error {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, value)
	if err := bucket.Put([]byte(key), data); err != nil {
		return fmt.Errorf("保存%s失败: %w", key, err)
	}
	return nil
}

// Info 返回检查点信息副本
func (cp *Checkpoint) Info() *CheckpointInfo {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	return &CheckpointInfo{
		LastScannedBlock:  cp.cache.LastScannedBlock,
		ScanCycles:        cp.cache.ScanCycles,
		ApplicationsFound: cp.cache.ApplicationsFound,
		LastScanTime:      cp.cache.LastScanTime,
	}
}

// Reset 重置检查点
func (cp *Checkpoint) Reset() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cp.cache = &CheckpointInfo{}

	return cp.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(CheckpointBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			return bucket.Delete(k)
		})
	})
}

// Close 关闭检查点管理器
func (cp *Checkpoint) Close() error {
	if cp.db != nil {
		cp.logger.Info("关闭扫描检查点")
		return cp.db.Close()
	}
	return nil
}
