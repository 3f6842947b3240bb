package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"DiaryToWebtoon-server/config"
)

// 档案头像在对象存储里的固定文件名，同一用户重复生成时覆盖旧档案
const profileObjectFilename = "temp_profile.webp"

// 存储键段只允许字母数字和下划线，防止路径穿越和畸形键
var keySegmentPattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeMemberID 净化用户标识，留作存储键段
func SanitizeMemberID(memberID string) string {
	return keySegmentPattern.ReplaceAllString(memberID, "")
}

// ProfileObjectName 档案头像对象键: <root>/<member>/temp_profile.webp
func ProfileObjectName(rootPrefix, memberID string) string {
	return path.Join(rootPrefix, memberID, profileObjectFilename)
}

// WebtoonObjectName 网漫图片对象键: <root>/<member>/<date>/<文件名>
func WebtoonObjectName(rootPrefix, memberID, date, basename string) string {
	return path.Join(rootPrefix, memberID, date, basename)
}

// WebtoonFolderPrefix 网漫当日文件夹前缀（带尾部斜杠）
func WebtoonFolderPrefix(rootPrefix, memberID, date string) string {
	return path.Join(rootPrefix, memberID, date) + "/"
}

// AssetRelay 把生成后端产出的远程图片中转到持久对象存储：
// 先下载到本地临时目录，上传成功后立即删除本地副本
type AssetRelay struct {
	UploadDir  string
	RootPrefix string
	Client     *http.Client
}

func NewAssetRelay(uploadDir, rootPrefix string) *AssetRelay {
	return &AssetRelay{
		UploadDir:  uploadDir,
		RootPrefix: rootPrefix,
		Client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// Download 下载远程图片到本地临时路径，非 2xx 视为失败
func (r *AssetRelay) Download(ctx context.Context, url, imgName string) (string, error) {
	if err := os.MkdirAll(r.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("创建临时目录失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create download request failed: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	filePath := filepath.Join(r.UploadDir, SanitizeMemberID(imgName)+".webp")
	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("创建本地文件失败: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("写入本地文件失败: %w", err)
	}
	log.Printf("File downloaded successfully and saved to %s", filePath)
	return filePath, nil
}

// Publish 把本地文件上传到持久存储。
// 档案用固定文件名覆盖写；网漫按日期文件夹保留原文件名。
// 上传成功后删除本地副本；失败只记日志并返回空 URL，不抛错。
func (r *AssetRelay) Publish(localPath, memberID, date string, isProfile bool) string {
	member := SanitizeMemberID(memberID)
	log.Printf("Sanitized memberId: %s", member)
	if member == "" {
		log.Printf("memberId 净化后为空，拒绝上传: %q", memberID)
		return ""
	}

	if _, err := os.Stat(localPath); err != nil {
		log.Printf("Error: File %s does not exist.", localPath)
		return ""
	}

	var objectName string
	if isProfile {
		objectName = ProfileObjectName(r.RootPrefix, member)
	} else if date != "" {
		objectName = WebtoonObjectName(r.RootPrefix, member, date, filepath.Base(localPath))
	} else {
		log.Printf("Invalid parameters: either date should be provided for webtoon images or isProfile should be true.")
		return ""
	}
	log.Printf("Object Name: %s", objectName)

	url, err := UploadWebpFile(localPath, objectName)
	if err != nil {
		log.Printf("Error uploading image: %v", err)
		return ""
	}

	if err := os.Remove(localPath); err != nil {
		log.Printf("删除本地临时文件失败: %v", err)
	} else {
		log.Printf("Local file %s deleted after successful upload.", localPath)
	}
	return url
}

// FolderURL 网漫当日文件夹的确定性访问 URL
func (r *AssetRelay) FolderURL(memberID, date string) string {
	return PublicObjectURL(WebtoonFolderPrefix(r.RootPrefix, SanitizeMemberID(memberID), date))
}

// DefaultRelay 按全局配置构造 AssetRelay
func DefaultRelay() *AssetRelay {
	cfg := config.AppConfig.Storage
	return NewAssetRelay(cfg.UploadDir, cfg.RootPrefix)
}
