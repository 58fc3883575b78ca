package cmd

import (
	"context"
	"fmt"
	"log"

	"EchoQuiz/config"
	"EchoQuiz/core/transcript"
	"EchoQuiz/db"
	"EchoQuiz/model"
	"EchoQuiz/repository"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "扫描转录目录并回填数据库",
	Long:  `遍历转录目录中的元数据描述文件，把数据库里缺失的转录记录补回来。已有记录不会被覆盖。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		fmt.Printf("扫描目录: %s\n", cfg.TranscriptDir)

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("无法连接数据库: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(&model.Transcript{}, &model.MCQ{}); err != nil {
			log.Fatalf("数据库迁移失败: %v", err)
		}

		transcriptRepo := repository.NewGormTranscriptRepository(db.GormDB)
		mcqRepo := repository.NewGormMCQRepository(db.GormDB)
		store := transcript.NewStore(cfg, transcriptRepo, mcqRepo)

		added, err := store.Scan(context.Background())
		if err != nil {
			log.Fatalf("扫描失败: %v", err)
		}

		fmt.Printf("扫描完成，新增 %d 条转录记录\n", added)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
