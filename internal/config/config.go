// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 运行模式
const (
	ModeAnthropic = "anthropic" // 直连Anthropic API
	ModeBedrock   = "bedrock"   // AWS Bedrock托管模型
)

// 当前配置的单例实例
var (
	currentConfig *Config
	configMutex   sync.RWMutex
)

// Config 存储应用配置
type Config struct {
	Port      string
	DebugMode bool

	// 目录配置
	DataDir   string
	UploadDir string
	StaticDir string
	LogDir    string

	// LLM相关配置
	Mode            string // anthropic 或 bedrock
	AnthropicAPIKey string
	ModelID         string
	MaxImages       int // 单次解析送入模型的最大帧数

	// AWS相关配置
	AWSRegion string

	// DynamoDB远程同步配置
	DynamoDBEnabled      bool
	DynamoDBScriptsTable string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:      getEnv("PORT", "8080"),
		DebugMode: getEnvBool("DEBUG_MODE", true),

		DataDir:   getEnvPath("DATA_DIR", "data"),
		UploadDir: getEnvPath("UPLOAD_DIR", "resources"),
		StaticDir: getEnv("STATIC_DIR", "static"),
		LogDir:    getEnvPath("LOG_DIR", "logs"),

		Mode:            getEnv("MODE", ModeAnthropic),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ModelID:         getEnv("MODEL_ID", ""),
		MaxImages:       getEnvInt("MAX_IMAGES", 20),

		AWSRegion: getEnv("AWS_REGION", "us-east-1"),

		DynamoDBEnabled:      getEnvBool("DYNAMODB_ENABLED", false),
		DynamoDBScriptsTable: getEnv("DYNAMODB_SCRIPTS_TABLE", "YukkuriScripts"),
	}

	if config.Mode != ModeAnthropic && config.Mode != ModeBedrock {
		return nil, fmt.Errorf("不支持的运行模式: %q（可选值: anthropic / bedrock）", config.Mode)
	}

	// 模型未指定时按模式选择默认值
	if config.ModelID == "" {
		if config.Mode == ModeBedrock {
			config.ModelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
		} else {
			config.ModelID = "claude-3-5-sonnet-20240620"
		}
	}

	return config, nil
}

// InitConfig 初始化全局配置
func InitConfig() error {
	config, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = config

	return nil
}

// GetCurrentConfig 获取当前配置（未初始化时按需加载）
func GetCurrentConfig() *Config {
	configMutex.RLock()
	if currentConfig != nil {
		defer configMutex.RUnlock()
		return currentConfig
	}
	configMutex.RUnlock()

	InitConfig()

	configMutex.RLock()
	defer configMutex.RUnlock()
	return currentConfig
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
