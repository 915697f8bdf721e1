package opencv

import (
	"os"
	"runtime"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// netBackend wählt Backend und Target für das DNN-Modul. Ohne useGPU oder ohne
// erkannte NVIDIA-GPU wird die CPU verwendet.
func netBackend(useGPU bool) (gocv.NetBackendType, gocv.NetTargetType) {
	if !useGPU {
		return gocv.NetBackendDefault, gocv.NetTargetCPU
	}

	if haveNvidiaGPU() {
		log.Info("NVIDIA GPU erkannt, verwende CUDA-Backend")
		return gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}

	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		// Metal wird von OpenCV DNN nicht unterstützt
		log.Info("Apple Silicon erkannt, verwende optimierte CPU-Version")
		return gocv.NetBackendDefault, gocv.NetTargetCPU
	}

	log.Warn("GPU-Nutzung aktiviert, aber keine unterstützte GPU erkannt. Verwende CPU.")
	return gocv.NetBackendDefault, gocv.NetTargetCPU
}

// haveNvidiaGPU prüft, ob eine NVIDIA-GPU verfügbar ist
func haveNvidiaGPU() bool {
	// NVIDIA-Docker-Umgebung
	if os.Getenv("NVIDIA_VISIBLE_DEVICES") != "" || os.Getenv("NVIDIA_DRIVER_CAPABILITIES") != "" {
		return true
	}

	paths := []string{
		"/usr/local/cuda/lib64/libcudart.so",
		"/usr/lib/x86_64-linux-gnu/libcuda.so",
		"/usr/lib/libcuda.so",
		"/usr/bin/nvidia-smi",
		"/usr/local/bin/nvidia-smi",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			log.Debugf("CUDA gefunden: %s", path)
			return true
		}
	}
	return false
}
