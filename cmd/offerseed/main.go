// offerseed 从JSON文件批量导入岗位库。
// 已存在的offer_id跳过，可重复执行。
//
// 用法: offerseed -c config.yaml -f offers.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"resume-insight-go/internal/config"
	"resume-insight-go/internal/storage"
	"resume-insight-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/pflag"
	"gorm.io/datatypes"
)

// seedOffer JSON文件中的单个岗位条目
type seedOffer struct {
	OfferID     string   `json:"offer_id"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Location    string   `json:"location"`
	Status      string   `json:"status"`
}

func main() {
	var configPath string
	var offersPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.StringVarP(&offersPath, "file", "f", "offers.json", "Path to offers JSON file")
	pflag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	data, err := os.ReadFile(offersPath)
	if err != nil {
		log.Fatalf("读取岗位文件失败: %v", err)
	}

	var entries []seedOffer
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Fatalf("解析岗位文件失败: %v", err)
	}
	if len(entries) == 0 {
		log.Println("岗位文件为空，无事可做")
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()

	offers := make([]models.JobOffer, 0, len(entries))
	for i, entry := range entries {
		if entry.Title == "" || entry.Company == "" {
			log.Fatalf("第%d条岗位缺少title或company", i+1)
		}
		offerID := entry.OfferID
		if offerID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				log.Fatalf("生成offer_id失败: %v", err)
			}
			offerID = id.String()
		}
		status := entry.Status
		if status == "" {
			status = "ACTIVE"
		}
		skillsJSON, err := json.Marshal(entry.Skills)
		if err != nil {
			log.Fatalf("第%d条岗位技能序列化失败: %v", i+1, err)
		}
		offers = append(offers, models.JobOffer{
			OfferID:     offerID,
			Title:       entry.Title,
			Company:     entry.Company,
			Description: entry.Description,
			SkillsJSON:  datatypes.JSON(skillsJSON),
			Location:    entry.Location,
			Status:      status,
		})
	}

	if err := storageManager.MySQL.SeedOffers(ctx, offers); err != nil {
		log.Fatalf("批量写入岗位失败: %v", err)
	}

	fmt.Printf("已导入 %d 条岗位（重复offer_id自动跳过）\n", len(offers))
}
