package routes

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "cafeteria_payments/docs" // This will be auto-generated
	"cafeteria_payments/internal/adapter/http/handlers"
	"cafeteria_payments/internal/adapter/persistence/memory"
	repository2 "cafeteria_payments/internal/adapter/persistence/repository"
	"cafeteria_payments/internal/infrastructure/database"
	"cafeteria_payments/internal/infrastructure/payments"
	"cafeteria_payments/internal/usecase"
	"cafeteria_payments/internal/usecase/interfaces"
)

var router = gin.Default()

const PORT = 8080

// Run will start the server
func Run() {
	setMiddlewares()

	// Swagger documentation endpoint
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	getRoutes()

	err := router.Run(":" + strconv.Itoa(PORT))
	if err != nil {
		log.Fatalf("Failed to startup the application: %v", err.Error())
	}
}

func getRoutes() {
	paymentRepo, ledgerRepo, orderDir := buildStores()
	gatewayRegistry := payments.NewRegistryFromEnv()

	paymentUseCase := usecase.NewPaymentUseCase(paymentRepo, ledgerRepo, orderDir, gatewayRegistry)
	startSweeper(paymentRepo, paymentUseCase)

	paymentHandler := handlers.NewPaymentHandler(paymentUseCase)

	// Rotas publicas
	v1 := router.Group("/v1")
	addPingRoutes(v1)
	addPaymentRoutes(v1, paymentHandler)
}

// buildStores picks the persistence backend. PAYMENT_STORAGE=memory keeps
// everything in process, which is what local mock mode and the compose-less
// dev loop use; anything else goes through DynamoDB.
func buildStores() (interfaces.IPaymentRepository, interfaces.IFoodCardRepository, interfaces.IOrderDirectory) {
	storage := strings.ToLower(strings.TrimSpace(os.Getenv("PAYMENT_STORAGE")))
	if storage == "memory" {
		log.Printf("[payment][routes] storage=memory")
		return memory.NewPaymentRepository(), memory.NewFoodCardRepository(), memory.NewOrderDirectory()
	}

	ddb := database.Connect(context.Background())
	return repository2.NewPaymentDynamoRepository(ddb),
		repository2.NewFoodCardDynamoRepository(ddb),
		repository2.NewOrderDynamoRepository(ddb)
}

// startSweeper runs the reconciliation loop in the background for the life
// of the process.
func startSweeper(paymentRepo interfaces.IPaymentRepository, settler usecase.ISettler) {
	timeout := durationEnv("RECONCILE_TIMEOUT", 15*time.Minute)
	interval := durationEnv("RECONCILE_INTERVAL", time.Minute)
	sweeper := usecase.NewReconciliationUseCase(paymentRepo, settler, timeout, interval, 0)
	go sweeper.Run(context.Background())
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[payment][routes] invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func setMiddlewares() {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Printf("Recovered from panic: %v", recovered)
		c.AbortWithStatus(500)
	}))
}
