// metrics.go — Prometheus-метрики движка извлечения.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricEntitiesExtracted — сохранено сущностей по коллекциям.
	metricEntitiesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alm_entities_extracted_total",
		Help: "Количество сущностей ALM, сохранённых в хранилище",
	}, []string{"collection"})

	// metricPagesFetched — страниц получено от ALM.
	metricPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alm_pages_fetched_total",
		Help: "Количество страниц, полученных от ALM REST API",
	})

	// metricAttachmentDownloads — скачивания вложений по результату.
	metricAttachmentDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alm_attachment_downloads_total",
		Help: "Количество скачиваний вложений ALM",
	}, []string{"result"})

	// metricExtractionJobs — завершённые задачи по статусу.
	metricExtractionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alm_extraction_jobs_total",
		Help: "Количество завершённых задач извлечения",
	}, []string{"status"})

	// metricExtractionDuration — длительность рекурсивного извлечения.
	metricExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alm_extraction_duration_seconds",
		Help:    "Длительность рекурсивного извлечения",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// metricAttachmentCacheSize — записей в кэше содержимого вложений.
	metricAttachmentCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alm_attachment_cache_records",
		Help: "Количество вложений в кэше содержимого (PostgreSQL)",
	})

	// metricAttachmentCacheHits — попадания в in-memory кэш вложений.
	metricAttachmentCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alm_attachment_cache_requests_total",
		Help: "Запросы к in-memory кэшу вложений",
	}, []string{"result"})
)
