package mqtt

import "github.com/lubricentro/usagepredict/core/prediction"

// Publisher pushes prediction results to MQTT subscribers such as the
// reminder service.
type Publisher interface {
	PublishPrediction(res prediction.Result) error
}
