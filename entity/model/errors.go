package model

import "errors"

var (
	// ErrInterrupt 人工反馈节点挂起，等待外部信号
	ErrInterrupt = errors.New("interrupted: waiting for human feedback")
	// ErrUnsupportedFeedback 不支持的人工反馈信号
	ErrUnsupportedFeedback = errors.New("unsupported feedback signal")
	// ErrThreadNotFound 会话不存在
	ErrThreadNotFound = errors.New("thread not found")
	// ErrNotSuspended 会话不处于挂起状态
	ErrNotSuspended = errors.New("thread is not waiting for feedback")
	// ErrThreadBusy 会话正在被其他调用驱动
	ErrThreadBusy = errors.New("thread is already running")
	// ErrUnknownNode 路由到了未注册的节点
	ErrUnknownNode = errors.New("unknown node")
)
