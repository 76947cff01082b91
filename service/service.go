package service

import (
	"time"

	"bombily/pkg/logger"
	"bombily/pkg/schedule"
	"bombily/storage"
)

type IServiceManager interface {
	Order() OrderService
	Directory() Directory
	Sessions() *Sessions
	Resolver() *schedule.Resolver
}

type service struct {
	orderService OrderService
	directory    Directory
	sessions     *Sessions
	resolver     *schedule.Resolver
}

func New(stg storage.IStorage, resolver *schedule.Resolver, adminID int64, now func() time.Time, log logger.ILogger) IServiceManager {
	orders := NewOrderService(stg, resolver, now, log)
	dir := NewDirectory(stg, adminID, log)
	return &service{
		orderService: orders,
		directory:    dir,
		sessions:     NewSessions(dir, orders, log),
		resolver:     resolver,
	}
}

func (s *service) Order() OrderService {
	return s.orderService
}

func (s *service) Directory() Directory {
	return s.directory
}

func (s *service) Sessions() *Sessions {
	return s.sessions
}

func (s *service) Resolver() *schedule.Resolver {
	return s.resolver
}
