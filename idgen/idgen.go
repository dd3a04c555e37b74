// Package idgen 提供了分布式唯一 ID 生成器的实现.
// 支持 Snowflake 和 Sonyflake 两种算法，可通过配置选择.
package idgen

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"
)

var (
	// ErrUnsupportedType 不支持的 ID 生成器类型.
	ErrUnsupportedType = errors.New("unsupported id generator type")
	// ErrCreateNode 创建 Snowflake 节点失败.
	ErrCreateNode = errors.New("failed to create snowflake node")
	// ErrCreateSonyflake 创建 Sonyflake 实例失败.
	ErrCreateSonyflake = errors.New("failed to create sonyflake instance")
	// ErrInvalidMachineID 错误的机器 ID.
	ErrInvalidMachineID = errors.New("machine_id must be between 0 and 65535")
)

const maxRetries = 3

// Config ID 生成器配置.
type Config struct {
	Type      string // snowflake 或 sonyflake，默认 snowflake
	MachineID int64
}

// Generator 定义 ID 生成器接口.
type Generator interface {
	Generate() int64
}

// SnowflakeGenerator 使用雪花算法实现 Generator.
// 每毫秒可生成 4096 个 ID，支持 1024 台机器.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator 创建一个新的 SnowflakeGenerator.
func NewSnowflakeGenerator(machineID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(machineID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateNode, err)
	}
	slog.Debug("snowflake generator initialized", "machine_id", machineID)
	return &SnowflakeGenerator{node: node}, nil
}

// Generate 生成一个新的 ID.
func (g *SnowflakeGenerator) Generate() int64 {
	return g.node.Generate().Int64()
}

// SonyflakeGenerator 使用 Sonyflake 算法实现 Generator.
// 每 10 毫秒可生成 256 个 ID，支持 65536 台机器.
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator 创建一个新的 SonyflakeGenerator.
func NewSonyflakeGenerator(machineID int64) (*SonyflakeGenerator, error) {
	if machineID < 0 || machineID > 65535 {
		return nil, ErrInvalidMachineID
	}

	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) {
			return uint16(machineID & 0xFFFF), nil //nolint:gosec // 已校验范围
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateSonyflake, err)
	}
	slog.Debug("sonyflake generator initialized", "machine_id", machineID)
	return &SonyflakeGenerator{sf: sf}, nil
}

// Generate 生成一个新的 ID，连续失败时返回 0.
func (g *SonyflakeGenerator) Generate() int64 {
	for i := range maxRetries {
		id, err := g.sf.NextID()
		if err == nil {
			return int64(id & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // 已屏蔽符号位
		}
		slog.Warn("sonyflake generator failed, retrying", "retry", i+1, "error", err)
		time.Sleep(10 * time.Millisecond)
	}
	slog.Error("sonyflake generator failed after multiple retries")
	return 0
}

// NewGenerator 根据配置创建对应类型的 ID 生成器.
func NewGenerator(cfg Config) (Generator, error) {
	switch cfg.Type {
	case "sonyflake":
		return NewSonyflakeGenerator(cfg.MachineID)
	case "snowflake", "":
		return NewSnowflakeGenerator(cfg.MachineID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

// String 生成十进制字符串形式的 ID，用作请求 ID.
func String(g Generator) string {
	return strconv.FormatInt(g.Generate(), 10)
}
