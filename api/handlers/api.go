package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/commute-permit-api/api"
	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/expiration"
	"github.com/linesmerrill/commute-permit-api/models"
	"github.com/linesmerrill/commute-permit-api/notifications"
	"github.com/linesmerrill/commute-permit-api/permits"
	"github.com/linesmerrill/commute-permit-api/storage"
	"github.com/linesmerrill/commute-permit-api/templates/pdf"
)

// RequestTimeout bounds every api request except the monitoring runs, which
// use the configured monitor timeout
const RequestTimeout = 30 * time.Second

// App stores the router and its dependencies, so they can be reused
type App struct {
	Router  *mux.Router
	Config  config.Config
	Store   databases.RecordStore
	Files   storage.FileStore
	Locker  permits.Locker
	Email   notifications.Dispatcher
	Hub     *notifications.Hub
	Metrics *api.MetricsCollector
	Permits *permits.Service
	Monitor *expiration.Monitor
	Auth    *api.Auth

	client databases.ClientHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	store := databases.WithObserver(a.Store, api.RecordStoreOpFromContext)
	employees := databases.NewEmployeeDatabase(store)

	r := api.New(a.Metrics)

	p := Permit{Service: a.Permits}
	e := Employee{DB: employees}
	admin := Admin{DB: employees, Auth: a.Auth}
	exp := Expiration{Monitor: a.Monitor, Timeout: a.Config.MonitorTimeout}
	n := Notification{Hub: a.Hub}
	m := MetricsHandler{Metrics: a.Metrics}

	r.HandleFunc("/verify/{token}", p.VerifyPermitHandler).Methods("GET")
	r.HandleFunc("/ws/notifications", n.WebSocketHandler).Methods("GET")

	// monitoring runs are registered ahead of the api subrouter so the
	// request timeout does not cut them short
	r.Handle("/api/v1/expiration/run", a.Auth.AdminMiddleware(http.HandlerFunc(exp.RunHandler))).Methods("POST")
	r.Handle("/api/v1/cron/expiration-check", a.Auth.CronMiddleware(http.HandlerFunc(exp.RunHandler))).Methods("POST")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(RequestTimeout))

	apiCreate.HandleFunc("/admin/login", admin.AdminLoginHandler).Methods("POST")

	apiCreate.Handle("/employees", a.Auth.AdminMiddleware(http.HandlerFunc(e.CreateEmployeeHandler))).Methods("POST")
	apiCreate.Handle("/employees", a.Auth.AdminMiddleware(http.HandlerFunc(e.EmployeesHandler))).Methods("GET")
	apiCreate.Handle("/employees/{employee_id}", a.Auth.AdminMiddleware(http.HandlerFunc(e.EmployeeHandler))).Methods("GET")
	apiCreate.Handle("/employees/{employee_id}/permits", a.Auth.AdminMiddleware(http.HandlerFunc(p.PermitsByEmployeeHandler))).Methods("GET")

	documentRoutes(apiCreate, a.Auth, "licenses", Document[models.License]{DB: databases.NewLicenseDatabase(store)})
	documentRoutes(apiCreate, a.Auth, "vehicles", Document[models.Vehicle]{DB: databases.NewVehicleDatabase(store)})
	documentRoutes(apiCreate, a.Auth, "insurances", Document[models.Insurance]{DB: databases.NewInsuranceDatabase(store)})

	apiCreate.Handle("/permits", a.Auth.AdminMiddleware(http.HandlerFunc(p.IssuePermitHandler))).Methods("POST")
	apiCreate.Handle("/permits/{permit_id}", a.Auth.AdminMiddleware(http.HandlerFunc(p.PermitHandler))).Methods("GET")
	apiCreate.Handle("/permits/{permit_id}/revoke", a.Auth.AdminMiddleware(http.HandlerFunc(p.RevokePermitHandler))).Methods("POST")
	apiCreate.Handle("/permits/{permit_id}/download", a.Auth.AdminMiddleware(http.HandlerFunc(p.DownloadPermitHandler))).Methods("GET")

	apiCreate.Handle("/expiration/summary", a.Auth.AdminMiddleware(http.HandlerFunc(exp.SummaryHandler))).Methods("GET")

	apiCreate.Handle("/metrics", a.Auth.AdminMiddleware(http.HandlerFunc(m.GetMetricsSummary))).Methods("GET")
	apiCreate.Handle("/metrics/routes", a.Auth.AdminMiddleware(http.HandlerFunc(m.GetRouteMetrics))).Methods("GET")

	return r
}

func documentRoutes[T models.Document](r *mux.Router, auth *api.Auth, path string, d Document[T]) {
	r.Handle("/"+path, auth.AdminMiddleware(http.HandlerFunc(d.CreateHandler))).Methods("POST")
	r.Handle("/"+path+"/pending", auth.AdminMiddleware(http.HandlerFunc(d.PendingHandler))).Methods("GET")
	r.Handle("/"+path+"/{document_id}", auth.AdminMiddleware(http.HandlerFunc(d.GetHandler))).Methods("GET")
	r.Handle("/"+path+"/{document_id}", auth.AdminMiddleware(http.HandlerFunc(d.UpdateHandler))).Methods("PATCH")
	r.Handle("/"+path+"/{document_id}", auth.AdminMiddleware(http.HandlerFunc(d.DeleteHandler))).Methods("DELETE")
	r.Handle("/"+path+"/{document_id}/approval", auth.AdminMiddleware(http.HandlerFunc(d.ApprovalHandler))).Methods("POST")
	r.Handle("/employees/{employee_id}/"+path, auth.AdminMiddleware(http.HandlerFunc(d.ListByEmployeeHandler))).Methods("GET")
}

// Initialize is invoked by main to connect the backends and create a router
func (a *App) Initialize(ctx context.Context) error {
	var err error
	if a.Store == nil {
		if a.Store, err = a.openStore(ctx); err != nil {
			return err
		}
	}
	if a.Files == nil {
		if a.Files, err = a.openFiles(ctx); err != nil {
			return err
		}
	}
	if a.Locker == nil {
		if a.Locker, err = a.openLocker(); err != nil {
			return err
		}
	}
	if a.Email == nil && a.Config.SendgridAPIKey != "" {
		a.Email = notifications.NewEmailDispatcher(a.Config.SendgridAPIKey, a.Config.NotifyFromName, a.Config.NotifyFromEmail)
	}
	if a.Metrics == nil {
		a.Metrics = api.NewMetricsCollector(ctx)
	}

	a.wire()
	a.Router = a.New()
	return nil
}

// wire builds the services over the opened backends
func (a *App) wire() {
	store := databases.WithObserver(a.Store, api.RecordStoreOpFromContext)
	api.SetQueryTimeout(a.Config.QueryTimeout)
	if a.Hub == nil {
		a.Hub = notifications.NewHub()
	}
	email := a.Email
	if email == nil {
		email = notifications.LogDispatcher{}
	}
	dispatcher := notifications.Fanout{email, a.Hub}

	a.Permits = permits.NewService(store, a.Files, pdf.Renderer{FontPath: a.Config.PDFFontPath}, a.Locker, &a.Config)
	a.Monitor = expiration.NewMonitor(store, dispatcher, notifications.NewHistory(store), a.Config.Thresholds, a.Config.Location())
	a.Auth = api.NewAuth(databases.NewEmployeeDatabase(store), a.Config.JWTSecret, a.Config.CronSecret)
}

func (a *App) openStore(ctx context.Context) (databases.RecordStore, error) {
	switch a.Config.RecordStore {
	case "mongo":
		client, err := databases.NewClient(&a.Config)
		if err != nil {
			// if we fail to create a new database client, then kill the pod
			zap.S().Errorw("failed to create new client", "error", err)
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			// if we fail to connect to the database, then kill the pod
			zap.S().Errorw("failed to connect to database", "error", err)
			return nil, err
		}
		a.client = client
		zap.S().Info("commute-permit-api has connected to the database")
		return databases.NewMongoRecordStore(databases.NewDatabase(&a.Config, client)), nil
	case "dynamodb":
		client, err := databases.NewDynamoClient(ctx, a.Config.DynamoEndpoint)
		if err != nil {
			zap.S().Errorw("failed to create dynamodb client", "error", err)
			return nil, err
		}
		return databases.NewDynamoRecordStore(client, a.Config.DynamoTablePrefix), nil
	case "memory":
		zap.S().Warn("using the in memory record store, data is lost on restart")
		return databases.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown record store %q", a.Config.RecordStore)
}

func (a *App) openFiles(ctx context.Context) (storage.FileStore, error) {
	switch a.Config.FileStorage {
	case "local":
		return storage.NewLocal(a.Config.LocalStorageDir), nil
	case "s3":
		return storage.NewS3Store(ctx, a.Config.S3Bucket)
	case "cloudinary":
		return storage.NewCloudinary(a.Config.CloudinaryCloudName, a.Config.CloudinaryAPIKey, a.Config.CloudinaryAPISecret, a.Config.CloudinaryFolderName)
	}
	return nil, fmt.Errorf("unknown file storage %q", a.Config.FileStorage)
}

func (a *App) openLocker() (permits.Locker, error) {
	if a.Config.RedisURL == "" {
		return permits.NewKeyedMutex(), nil
	}
	locker, err := permits.NewRedisLocker(a.Config.RedisURL, 2*RequestTimeout)
	if err != nil {
		return nil, err
	}
	zap.S().Info("permit issuance locks are held in redis")
	return locker, nil
}

// Close releases the database connection
func (a *App) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}
