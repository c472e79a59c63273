package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"mycard/internal/config"
	"mycard/internal/infrastructure/mq"
	"mycard/internal/model"
	"mycard/internal/repository"
)

type store interface {
	Create(ctx context.Context, entry *model.AuditLog) error
}

// Recorder 审计事件接收器
//
// 【关键点】审计是业务成功之后的旁路动作：
// 1. Record 只投递到带缓冲的通道，绝不阻塞业务请求
// 2. 落库/发 Kafka 由后台任务完成，任何失败只记日志，
//    绝不回滚已提交的资金变动
// 3. 通道写满时丢弃事件并记日志
type Recorder struct {
	store   store
	topic   string
	publish func(topic, key, value string) error
	ch      chan *model.AuditLog
}

func NewRecorder(repo *repository.AuditRepository, cfg *config.Config) *Recorder {
	bufSize := cfg.Business.AuditBufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &Recorder{
		store:   repo,
		topic:   cfg.Kafka.Topic.AuditLog,
		publish: mq.SendMessage,
		ch:      make(chan *model.AuditLog, bufSize),
	}
}

// Record 投递一条审计事件（非阻塞）
func (r *Recorder) Record(userID int64, actionType, resourceType string, resourceID int64, description string) {
	entry := &model.AuditLog{
		UserID:       userID,
		ActionType:   actionType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
	}

	select {
	case r.ch <- entry:
	default:
		log.Printf("[Audit] 审计通道已满，丢弃事件: %s %s/%d", actionType, resourceType, resourceID)
	}
}

// Start 启动审计落库任务
func (r *Recorder) Start(ctx context.Context) {
	log.Println("[Audit] 审计落库任务启动")

	for {
		select {
		case <-ctx.Done():
			// 退出前把通道里剩余的事件写完
			for {
				select {
				case entry := <-r.ch:
					r.persist(entry)
				default:
					log.Println("[Audit] 收到停止信号，任务退出")
					return
				}
			}
		case entry := <-r.ch:
			r.persist(entry)
		}
	}
}

func (r *Recorder) persist(entry *model.AuditLog) {
	if err := r.store.Create(context.Background(), entry); err != nil {
		log.Printf("[Audit] 审计落库失败: %s %s/%d, err=%v",
			entry.ActionType, entry.ResourceType, entry.ResourceID, err)
	}

	if r.topic == "" || r.publish == nil {
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[Audit] 审计事件序列化失败: %v", err)
		return
	}
	if err := r.publish(r.topic, fmt.Sprintf("%d", entry.UserID), string(payload)); err != nil {
		log.Printf("[Audit] 审计事件发送失败: %s %s/%d, err=%v",
			entry.ActionType, entry.ResourceType, entry.ResourceID, err)
	}
}
