package database

import (
	"context"
	"fmt"

	"drivesafe/models"

	"github.com/apex/log"
)

// Sample UK speed camera dataset used to bootstrap a fresh install.
var sampleCameras = []models.CreateCameraArgs{
	// London area
	{Latitude: 51.5074, Longitude: -0.1278, CameraType: models.CameraFixed, RoadName: "A4 Cromwell Road", SpeedLimit: 30},
	{Latitude: 51.5155, Longitude: -0.1419, CameraType: models.CameraFixed, RoadName: "A40 Marylebone Road", SpeedLimit: 40},
	{Latitude: 51.4924, Longitude: -0.1917, CameraType: models.CameraRedLight, RoadName: "A4 Earl's Court Road", SpeedLimit: 30},
	{Latitude: 51.5267, Longitude: -0.0873, CameraType: models.CameraFixed, RoadName: "A10 City Road", SpeedLimit: 30},
	{Latitude: 51.4818, Longitude: -0.1252, CameraType: models.CameraAverageSpeedStart, RoadName: "A3 Brixton Road", SpeedLimit: 30},
	{Latitude: 51.4695, Longitude: -0.1161, CameraType: models.CameraAverageSpeedEnd, RoadName: "A3 Brixton Road", SpeedLimit: 30},
	// M25
	{Latitude: 51.6835, Longitude: 0.0342, CameraType: models.CameraAverageSpeedStart, RoadName: "M25 Junction 26-27", SpeedLimit: 70},
	{Latitude: 51.7012, Longitude: 0.0824, CameraType: models.CameraAverageSpeedEnd, RoadName: "M25 Junction 26-27", SpeedLimit: 70},
	// Birmingham area
	{Latitude: 52.4862, Longitude: -1.8904, CameraType: models.CameraFixed, RoadName: "A38 Bristol Road", SpeedLimit: 40},
	{Latitude: 52.4774, Longitude: -1.9132, CameraType: models.CameraFixed, RoadName: "A456 Hagley Road", SpeedLimit: 40},
	{Latitude: 52.5127, Longitude: -1.8716, CameraType: models.CameraRedLight, RoadName: "A34 Birchfield Road", SpeedLimit: 30},
	// Manchester area
	{Latitude: 53.4808, Longitude: -2.2426, CameraType: models.CameraFixed, RoadName: "A56 Chester Road", SpeedLimit: 30},
	{Latitude: 53.4723, Longitude: -2.2380, CameraType: models.CameraFixed, RoadName: "A5103 Princess Road", SpeedLimit: 40},
	{Latitude: 53.4944, Longitude: -2.2235, CameraType: models.CameraAverageSpeedStart, RoadName: "A635 Ashton Old Road", SpeedLimit: 40},
	// Leeds area
	{Latitude: 53.7996, Longitude: -1.5491, CameraType: models.CameraFixed, RoadName: "A58 Clay Pit Lane", SpeedLimit: 30},
	{Latitude: 53.8067, Longitude: -1.5373, CameraType: models.CameraFixed, RoadName: "A64 York Road", SpeedLimit: 40},
	// Glasgow area
	{Latitude: 55.8642, Longitude: -4.2518, CameraType: models.CameraFixed, RoadName: "M8 Kingston Bridge", SpeedLimit: 50},
	{Latitude: 55.8554, Longitude: -4.2487, CameraType: models.CameraRedLight, RoadName: "A8 Argyle Street", SpeedLimit: 30},
	// Edinburgh area
	{Latitude: 55.9533, Longitude: -3.1883, CameraType: models.CameraFixed, RoadName: "A1 London Road", SpeedLimit: 30},
	{Latitude: 55.9418, Longitude: -3.2047, CameraType: models.CameraFixed, RoadName: "A7 Dalkeith Road", SpeedLimit: 40},
}

// SeedSampleCameras replaces all cameras with the sample UK dataset (admin,
// initial setup only). Returns the number of cameras inserted.
func (s *CamerasService) SeedSampleCameras(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cameras`); err != nil {
		return 0, fmt.Errorf("failed to clear cameras: %w", err)
	}

	for i := range sampleCameras {
		if _, err := s.CreateCamera(ctx, &sampleCameras[i]); err != nil {
			return 0, err
		}
	}

	log.Infof("Seeded %d sample cameras", len(sampleCameras))
	return len(sampleCameras), nil
}
