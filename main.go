package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/handlers"
	"github.com/shuvam-kayal/Devember-CollabQuest/logging"
	"github.com/shuvam-kayal/Devember-CollabQuest/middleware"
	"github.com/shuvam-kayal/Devember-CollabQuest/services"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

func main() {
	logging.InitLogger()

	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Teams Service...")
	err := godotenv.Load(".env")
	if err != nil {
		logging.Logger.Warnf("Event ID: ENV_LOAD_ERROR, Description: Error loading .env file: %v", err)
	}

	mongoURI := os.Getenv("MONGO_URI")
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	mongoCollectionName := os.Getenv("MONGO_COLLECTION")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	teamsClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: Database connection for MongoDB failed: %v", err)
	}
	defer teamsClient.Disconnect(ctx)

	if err := teamsClient.Ping(ctx, nil); err != nil {
		logging.Logger.Fatalf("Event ID: DB_PING_FAILED, Description: MongoDB connection ping error: %v", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB at %s.", mongoURI)

	teamsCollection := teamsClient.Database(mongoDBName).Collection(mongoCollectionName)
	logging.Logger.Infof("Event ID: DB_COLLECTION_SET, Description: Using MongoDB collection: %s/%s", mongoDBName, mongoCollectionName)

	httpClient := &http.Client{Timeout: 10 * time.Second}

	store := services.NewMongoTeamStore(teamsCollection)
	notifier := services.NewHTTPNotifier(httpClient, newBreaker("notifications-cb"), os.Getenv("NOTIFICATIONS_SERVICE_URL"))
	cascade := services.NewHTTPCascade(httpClient, newBreaker("chat-cb"), newBreaker("matches-cb"), os.Getenv("CHAT_SERVICE_URL"), os.Getenv("MATCHES_SERVICE_URL"))

	teamService := services.NewTeamService(store, notifier, cascade)
	taskService := services.NewTaskService(teamService)
	teamHandler := handlers.NewTeamHandler(teamService)
	taskHandler := handlers.NewTaskHandler(taskService, teamService)

	r := mux.NewRouter()

	r.HandleFunc("/api/teams", teamHandler.CreateTeam).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}", teamHandler.GetTeam).Methods(http.MethodGet)
	r.HandleFunc("/api/teams/{id}", teamHandler.UpdateTeam).Methods(http.MethodPut)

	r.HandleFunc("/api/teams/{id}/delete/initiate", teamHandler.InitiateDeletion).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/delete/vote", teamHandler.VoteDeletion).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/complete/initiate", teamHandler.InitiateCompletion).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/complete/vote", teamHandler.VoteCompletion).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/leave", teamHandler.LeaveTeam).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/members/{userId}/remove", teamHandler.RemoveMember).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/member-request/{requestId}/vote", teamHandler.VoteMemberRequest).Methods(http.MethodPost)

	r.HandleFunc("/api/teams/{id}/tasks", taskHandler.ListTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/teams/{id}/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/tasks/{taskId}", taskHandler.DeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/teams/{id}/tasks/{taskId}/submit", taskHandler.SubmitTask).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/tasks/{taskId}/verify", taskHandler.VerifyTask).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/tasks/{taskId}/rework", taskHandler.RequestRework).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/tasks/{taskId}/extend/initiate", taskHandler.InitiateExtension).Methods(http.MethodPost)
	r.HandleFunc("/api/teams/{id}/tasks/{taskId}/extend/vote", taskHandler.VoteExtension).Methods(http.MethodPost)

	corsRouter := enableCORS(middleware.JWTAuthMiddleware(r))

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: SERVER_PORT is not set in the environment variables.")
	}

	serverAddress := fmt.Sprintf(":%s", serverPort)
	logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", serverAddress)

	if err := http.ListenAndServe(serverAddress, corsRouter); err != nil {
		logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
	}
}
