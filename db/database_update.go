package db

import (
	"gtorrent/db/models"

	"gorm.io/gorm"
)

// UpdateDownload updates a download record in the database
func (d *Database) UpdateDownload(download *models.Download) error {
	return d.db.Save(download).Error
}

// UpdatePiece updates a piece record in the database
func (d *Database) UpdatePiece(piece *models.Piece) error {
	return d.db.Save(piece).Error
}

// MarkPieceDownloaded flips IsDownloaded on the piece record for
// downloadID/index, driven by a session's NewDownloadedPiece event.
func (d *Database) MarkPieceDownloaded(downloadID uint, index int) error {
	return d.db.Model(&models.Piece{}).
		Where("download_id = ? AND \"index\" = ?", downloadID, index).
		Update("is_downloaded", true).Error
}

// UpdatePeerStatus records a session's latest choke/interest state and
// status text for the peer at ip:port under downloadID, driven by a
// session's OurStatus event.
func (d *Database) UpdatePeerStatus(downloadID uint, ip string, port uint16, isChoked, isInterested bool, status string) error {
	return d.db.Model(&models.Peer{}).
		Where("download_id = ? AND ip = ? AND port = ?", downloadID, ip, port).
		Updates(map[string]interface{}{
			"is_choked":     isChoked,
			"is_interested": isInterested,
			"last_status":   status,
		}).Error
}

// AddPeerBytesDownloaded accumulates bytes delivered by the peer at
// ip:port under downloadID.
func (d *Database) AddPeerBytesDownloaded(downloadID uint, ip string, port uint16, n int64) error {
	return d.db.Model(&models.Peer{}).
		Where("download_id = ? AND ip = ? AND port = ?", downloadID, ip, port).
		UpdateColumn("bytes_downloaded", gorm.Expr("bytes_downloaded + ?", n)).Error
}
